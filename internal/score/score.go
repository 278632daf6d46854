// Package score implements the weighted composite scoring engine (spec
// §4.3): five sub-scores per entry, combined into a final_score and
// confidence, under a configured AnalysisMode's filtering rules.
package score

import (
	"math"
	"regexp"

	"github.com/hartools/har-lolicode/internal/classify"
	"github.com/hartools/har-lolicode/internal/config"
)

// SubScores are the five components averaged into FinalScore.
type SubScores struct {
	Relevance  float64
	Security   float64
	Business   float64
	Temporal   float64
	Contextual float64
}

// ScoredEntry is classify.Classified plus its scores.
type ScoredEntry struct {
	classify.Classified
	Scores     SubScores
	FinalScore float64
	Confidence float64
}

// ContextualState is what a contextual rule predicate is evaluated
// against: previous_requests, session_state, all_entries,
// current_index.
type ContextualState struct {
	PreviousRequests []classify.Classified
	AllEntries       []classify.Classified
	CurrentIndex     int
	SessionActive    bool
}

// ContextualPredicate is a library-provided condition, referenced by id
// from config.ContextualRule.
type ContextualPredicate func(ContextualState) bool

// StandardConditions are the condition_ids the filtering config can
// reference.
var StandardConditions = map[string]ContextualPredicate{
	"follows_auth_request": func(s ContextualState) bool {
		for _, p := range s.PreviousRequests {
			if _, ok := p.ResourceTypes[classify.Authentication]; ok {
				return true
			}
		}
		return false
	},
	"session_already_active": func(s ContextualState) bool {
		return s.SessionActive
	},
	"is_first_request": func(s ContextualState) bool {
		return s.CurrentIndex == 0
	},
}

// ScoringFunction computes SubScores for one entry; score.ForMode returns
// the strategy for a given config (spec's design note: a fixed set of
// strategy functions instead of class hierarchies).
type ScoringFunction func(entry classify.Classified, index, total int, state ContextualState, cfg config.AnalysisConfig) SubScores

// ForMode looks up the scoring function; every mode shares the same
// weighted-composite algorithm and differs only through the
// AnalysisConfig values already baked in by config.ApplyMode.
func ForMode(cfg config.AnalysisConfig) ScoringFunction {
	return computeSubScores
}

func computeSubScores(entry classify.Classified, index, total int, state ContextualState, cfg config.AnalysisConfig) SubScores {
	return SubScores{
		Relevance:  relevance(entry, cfg),
		Security:   security(entry),
		Business:   business(entry),
		Temporal:   temporal(index, total),
		Contextual: contextual(state, cfg),
	}
}

func relevance(entry classify.Classified, cfg config.AnalysisConfig) float64 {
	s := 0.0
	url := entry.Entry.Request.URL

	for _, pat := range cfg.Filtering.EndpointPatterns.Include {
		if matchRegex(pat, url) {
			s += 50
			break
		}
	}
	for _, pat := range cfg.Filtering.EndpointPatterns.Exclude {
		if matchRegex(pat, url) {
			s -= 50
			break
		}
	}
	for _, pp := range cfg.Filtering.EndpointPatterns.Priority {
		if matchRegex(pp.Regex, url) {
			s += float64(pp.Weight)
		}
	}
	for t := range entry.ResourceTypes {
		if w, ok := cfg.Filtering.ResourceTypeWeights[string(t)]; ok {
			s += float64(w)
		}
	}

	return clamp(s)
}

func security(entry classify.Classified) float64 {
	s := 50.0
	if entry.Characteristics.HasAuthentication {
		s += 20
	}
	if entry.Characteristics.HasSensitiveData {
		s += 30
	}
	if !entry.Characteristics.IsIdempotent {
		s += 10
	}
	return clamp(s)
}

func business(entry classify.Classified) float64 {
	s := 0.0
	if _, ok := entry.ResourceTypes[classify.ApiEndpoint]; ok {
		s += 20
	}
	if _, ok := entry.ResourceTypes[classify.FormSubmission]; ok {
		s += 30
	}
	if entry.Characteristics.HasStateChange {
		s += 25
	}
	return clamp(s)
}

func temporal(index, total int) float64 {
	if total <= 1 {
		return 100
	}
	return clamp(100 - (float64(index)/float64(total))*100)
}

func contextual(state ContextualState, cfg config.AnalysisConfig) float64 {
	s := 0.0
	for _, rule := range cfg.Filtering.ContextualRules {
		pred, ok := StandardConditions[rule.ConditionID]
		if !ok {
			continue
		}
		if pred(state) {
			s += rule.Weight * 100
		}
	}
	return s
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// Finalize applies the mean/threshold/confidence rules to a SubScores
// value.
func Finalize(s SubScores, thresholds config.ScoreThresholds) (finalScore, confidence float64) {
	mean := (s.Relevance + s.Security + s.Business + s.Temporal + s.Contextual) / 5
	if mean < thresholds.Minimum {
		finalScore = 0
	} else if mean > thresholds.Optimal {
		finalScore = 100
	} else {
		finalScore = mean
	}

	values := []float64{s.Relevance, s.Security, s.Business, s.Temporal, s.Contextual}
	avg := mean
	variance := 0.0
	for _, v := range values {
		d := v - avg
		variance += d * d
	}
	variance /= float64(len(values))

	confidence = 1 - math.Sqrt(variance)/50
	if confidence < 0 {
		confidence = 0
	}
	return finalScore, confidence
}

// Score runs the full scoring pipeline over a set of classified entries,
// dropping no entries itself — callers filter using ScoredEntry.FinalScore
// (a mean below thresholds.Minimum collapses to 0, meaning the entry
// should be dropped).
func Score(entries []classify.Classified, cfg config.AnalysisConfig) []ScoredEntry {
	fn := ForMode(cfg)
	total := len(entries)
	out := make([]ScoredEntry, 0, total)

	sessionActive := false
	for i, e := range entries {
		state := ContextualState{
			PreviousRequests: entries[:i],
			AllEntries:       entries,
			CurrentIndex:     i,
			SessionActive:    sessionActive,
		}
		sub := fn(e, i, total, state, cfg)
		final, conf := Finalize(sub, cfg.Filtering.ScoreThresholds)

		out = append(out, ScoredEntry{
			Classified: e,
			Scores:     sub,
			FinalScore: final,
			Confidence: conf,
		})

		if _, ok := e.ResourceTypes[classify.SessionManagement]; ok {
			sessionActive = true
		}
	}
	return out
}

// Filter returns only the entries that survived (final_score > 0).
func Filter(scored []ScoredEntry) []ScoredEntry {
	out := make([]ScoredEntry, 0, len(scored))
	for _, s := range scored {
		if s.FinalScore > 0 {
			out = append(out, s)
		}
	}
	return out
}

func matchRegex(pattern, s string) bool {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(s)
}
