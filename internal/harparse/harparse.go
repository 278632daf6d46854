// Package harparse turns a HAR document into validated harmodel.HarEntry
// values, honouring size guards and cancellation. The whole document is
// decoded in memory and every surviving entry is returned in one slice;
// BatchSize only sets how often progress is reported.
package harparse

import (
	"context"
	"encoding/json"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/hartools/har-lolicode/internal/harmodel"
	"github.com/hartools/har-lolicode/internal/progress"
)

// Limits bounds the parser's memory and work.
type Limits struct {
	BatchSize              int
	MaxEntrySize           int64
	LargeResponseThreshold int64
	SkipLargeResponses     bool
}

const truncatedSentinel = "[Content truncated]"

var credentialFieldRe = regexp.MustCompile(`(?i)^(user(name)?|email|pass(word)?|pwd)$`)

// Result is the outcome of a full parse pass.
type Result struct {
	Entries        []harmodel.HarEntry
	EntriesSkipped int
	Warnings       []progress.Warning
	Aborted        bool
}

const defaultBatchSize = 100

// Parse validates and converts every entry in a HAR document, applying
// size guards and emitting batched progress every limits.BatchSize entries
// (defaultBatchSize when unset).
// It stops and reports Aborted if ctx is cancelled between entries.
func Parse(ctx context.Context, data []byte, limits Limits, sink progress.Sink) (Result, error) {
	raw, err := harmodel.ParseTopLevel(data)
	if err != nil {
		return Result{}, err
	}

	if !harmodel.SupportedVersions[raw.Log.Version] {
		sink.OnWarning(progress.Warning{Message: "unsupported HAR version: " + raw.Log.Version})
	}

	batchSize := limits.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	var result Result
	total := len(raw.Log.Entries)

	for i, re := range raw.Log.Entries {
		select {
		case <-ctx.Done():
			result.Aborted = true
			return result, nil
		default:
		}

		if i%batchSize == 0 {
			sink.OnEvent(progress.Event{Percent: percentOf(i, total), Stage: "parsing"})
		}

		if estimatedSize(&re) > limits.MaxEntrySize {
			result.EntriesSkipped++
			sink.OnEntryError(progress.EntryError{Index: i, Reason: "entry exceeds max_entry_size", Phase: "parse"})
			continue
		}

		if err := harmodel.ValidateEntry(i, &re); err != nil {
			result.EntriesSkipped++
			sink.OnEntryError(progress.EntryError{Index: i, Reason: err.Error(), Phase: "parse"})
			continue
		}

		if limits.SkipLargeResponses && re.Response != nil && int64(len(re.Response.Content.Text)) > limits.LargeResponseThreshold {
			re.Response.Content.Text = truncatedSentinel
		}

		entry := harmodel.ToEntry(i, &re)
		derivePostData(&entry)
		result.Entries = append(result.Entries, entry)
	}

	sink.OnEvent(progress.Event{Percent: 100, Stage: "parsing"})
	return result, nil
}

func percentOf(i, total int) int {
	if total == 0 {
		return 100
	}
	return i * 100 / total
}

func estimatedSize(re *harmodel.RawEntry) int64 {
	b, err := json.Marshal(re)
	if err != nil {
		return 0
	}
	return int64(len(b))
}

// derivePostData fills in PostData.Params when the raw entry omitted them,
// parsing form-urlencoded or JSON bodies. It does not mark credential-shaped
// parameters; IsCredentialField answers that for a single name.
func derivePostData(entry *harmodel.HarEntry) {
	pd := entry.Request.PostData
	if pd == nil || len(pd.Params) > 0 || pd.Text == "" {
		return
	}

	switch {
	case strings.Contains(pd.MimeType, "x-www-form-urlencoded"):
		pd.Params = append(pd.Params, parseFormEncodedOrdered(pd.Text)...)
	case strings.Contains(pd.MimeType, "application/json"):
		var parsed map[string]any
		if err := json.Unmarshal([]byte(pd.Text), &parsed); err != nil {
			return
		}
		names := make([]string, 0, len(parsed))
		for name := range parsed {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			pd.Params = append(pd.Params, harmodel.NVPair{Name: name, Value: flattenOneLevel(parsed[name])})
		}
	}
}

// parseFormEncodedOrdered splits a form-urlencoded body in source order.
// url.ParseQuery returns a map and so can't be ranged over deterministically;
// re-running analyze on the same bytes must yield byte-identical output.
func parseFormEncodedOrdered(text string) []harmodel.NVPair {
	var out []harmodel.NVPair
	for _, pair := range strings.Split(text, "&") {
		if pair == "" {
			continue
		}
		name, value := pair, ""
		if i := strings.IndexByte(pair, '='); i >= 0 {
			name, value = pair[:i], pair[i+1:]
		}
		if dn, err := url.QueryUnescape(name); err == nil {
			name = dn
		}
		if dv, err := url.QueryUnescape(value); err == nil {
			value = dv
		}
		out = append(out, harmodel.NVPair{Name: name, Value: value})
	}
	return out
}

func flattenOneLevel(v any) string {
	switch val := v.(type) {
	case string:
		return val
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// IsCredentialField reports whether a parameter name matches the
// credential family (username/email/password).
func IsCredentialField(name string) bool {
	return credentialFieldRe.MatchString(name)
}
