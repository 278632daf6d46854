// Package analyze wires the parse, score, correlate, detect, match and
// emit stages into the single pipeline entry point: analyze(har, config,
// on_progress?) -> AnalysisResult | PipelineError.
package analyze

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/hartools/har-lolicode/internal/block"
	"github.com/hartools/har-lolicode/internal/classify"
	"github.com/hartools/har-lolicode/internal/config"
	"github.com/hartools/har-lolicode/internal/correlate"
	"github.com/hartools/har-lolicode/internal/emit"
	"github.com/hartools/har-lolicode/internal/harmodel"
	"github.com/hartools/har-lolicode/internal/harparse"
	"github.com/hartools/har-lolicode/internal/pattern"
	"github.com/hartools/har-lolicode/internal/progress"
	"github.com/hartools/har-lolicode/internal/score"
	"github.com/hartools/har-lolicode/internal/token"
	"github.com/hartools/har-lolicode/internal/transition"
)

// ErrorKind is the closed error taxonomy every pipeline stage reports
// through.
type ErrorKind string

const (
	EmptyInput                ErrorKind = "EmptyInput"
	InvalidFormat              ErrorKind = "InvalidFormat"
	NoRequests                 ErrorKind = "NoRequests"
	NoRelevantRequests         ErrorKind = "NoRelevantRequests"
	EntrySkipped               ErrorKind = "EntrySkipped"
	ParseTimeout               ErrorKind = "ParseTimeout"
	Aborted                    ErrorKind = "Aborted"
	InternalInvariantViolation ErrorKind = "InternalInvariantViolation"
)

// PipelineError is the single error type every stage returns.
type PipelineError struct {
	Kind    ErrorKind
	Message string
}

func (e *PipelineError) Error() string { return string(e.Kind) + ": " + e.Message }

func newErr(kind ErrorKind, msg string) *PipelineError {
	return &PipelineError{Kind: kind, Message: msg}
}

// Metrics summarises the run for the caller's reporting surface,
// including which filtered entries turned out redundant to the critical
// path.
type Metrics struct {
	RunID            string
	EntriesTotal     int
	EntriesScored    int
	EntriesFiltered  int
	CriticalPathLen  int
	RedundantEntries []int
	TokensDetected   int
	PatternsMatched  int
	FlowCompleteness float64
}

// Result is the pipeline's top-level AnalysisResult.
type Result struct {
	Blocks               []block.IR
	Script               string
	CriticalPath         []harmodel.HarEntry
	MatchedPatterns      []pattern.Match
	DetectedTokensByName map[string][]token.Detected
	Transitions          []transition.Transition
	Metrics              Metrics
	Warnings             []progress.Warning
}

// Analyze runs the full pipeline over a HAR document. sink may be nil, in
// which case progress events are discarded.
func Analyze(ctx context.Context, har []byte, cfg config.AnalysisConfig, sink progress.Sink) (Result, error) {
	if sink == nil {
		sink = progress.NopSink{}
	}

	if len(strings.TrimSpace(string(har))) == 0 {
		return Result{}, newErr(EmptyInput, "no bytes or whitespace-only input")
	}

	runID := uuid.NewString()

	limits := harparse.Limits{
		BatchSize:              cfg.Parser.BatchSize,
		MaxEntrySize:           cfg.Parser.MaxEntrySize,
		LargeResponseThreshold: cfg.Parser.LargeResponseThreshold,
		SkipLargeResponses:     cfg.Parser.SkipLargeResponses,
	}

	parsed, err := harparse.Parse(ctx, har, limits, sink)
	if err != nil {
		return Result{}, newErr(InvalidFormat, err.Error())
	}
	if parsed.Aborted {
		return Result{}, newErr(Aborted, "cancelled during parse")
	}
	if len(parsed.Entries) == 0 {
		return Result{}, newErr(NoRequests, "HAR contains no requests")
	}

	sink.OnEvent(progress.Event{Percent: 0, Stage: "scoring"})

	classified := make([]classify.Classified, len(parsed.Entries))
	for i, e := range parsed.Entries {
		classified[i] = classify.Classify(e)
	}

	scored := score.Score(classified, cfg)
	filtered := score.Filter(scored)
	if len(filtered) == 0 {
		return Result{}, newErr(NoRelevantRequests, "filtering removed all entries")
	}

	sink.OnEvent(progress.Event{Percent: 15, Stage: "behavioural"})

	matrix, err := correlate.Compute(ctx, filtered)
	if err != nil {
		return Result{}, newErr(InternalInvariantViolation, err.Error())
	}
	pathResult := correlate.WalkCriticalPath(filtered, matrix, 0.7)

	sink.OnEvent(progress.Event{Percent: 30, Stage: "dependency"})

	pathEntries := make([]harmodel.HarEntry, len(pathResult.Path))
	originalIndex := make([]int, len(pathResult.Path))
	for pos, idx := range pathResult.Path {
		pathEntries[pos] = filtered[idx].Entry
		originalIndex[pos] = idx
	}

	sink.OnEvent(progress.Event{Percent: 45, Stage: "optimisation"})

	detected, err := token.DetectAll(ctx, pathEntries, originalIndex)
	if err != nil {
		return Result{}, newErr(InternalInvariantViolation, err.Error())
	}
	hasTokens := func(entryIdx int) bool {
		for _, d := range detected {
			for _, src := range d.SourceEntries {
				if src == entryIdx {
					return true
				}
			}
		}
		return false
	}

	sink.OnEvent(progress.Event{Percent: 60, Stage: "mfa"})

	matches := pattern.MatchAll(pattern.DefaultLibrary(), pathEntries, originalIndex, hasTokens)

	sink.OnEvent(progress.Event{Percent: 75, Stage: "tokens"})

	var transitions []transition.Transition
	primaryPatternConfidence := 0.0
	if len(matches) > 0 {
		transitions = transition.FromPatternMatch(pathEntries, originalIndex, matches[0])
		primaryPatternConfidence = matches[0].Confidence
	} else {
		transitions = transition.FromStates(pathEntries, originalIndex)
	}
	flowCompleteness := transition.FlowCompleteness(primaryPatternConfidence, pathEntries, transitions)

	blocks := block.Build(pathEntries, originalIndex, matches, detected, cfg)
	script := emit.Script(blocks)

	sink.OnEvent(progress.Event{Percent: 90, Stage: "codegen"})

	tokensByName := make(map[string][]token.Detected, len(detected))
	for _, d := range detected {
		tokensByName[d.Name] = append(tokensByName[d.Name], d)
	}

	sink.OnEvent(progress.Event{Percent: 100, Stage: "complete"})

	return Result{
		Blocks:               blocks,
		Script:                script,
		CriticalPath:          pathEntries,
		MatchedPatterns:       matches,
		DetectedTokensByName:  tokensByName,
		Transitions:           transitions,
		Metrics: Metrics{
			RunID:            runID,
			EntriesTotal:     len(parsed.Entries),
			EntriesScored:    len(scored),
			EntriesFiltered:  len(filtered),
			CriticalPathLen:  len(pathResult.Path),
			RedundantEntries: pathResult.Redundant,
			TokensDetected:   len(detected),
			PatternsMatched:  len(matches),
			FlowCompleteness: flowCompleteness,
		},
	}, nil
}
