// Package pattern holds the declarative authentication-flow pattern
// library and the greedy sequence matcher that walks it over the critical
// path.
package pattern

import (
	"math"
	"regexp"
	"sort"
	"time"

	"github.com/hartools/har-lolicode/internal/harmodel"
)

// Timing constrains the delay between a step and the previously matched
// step.
type Timing struct {
	Min time.Duration
	Max time.Duration
}

// Step is one constrained position in a pattern.
type Step struct {
	Name        string
	URLRegex    *regexp.Regexp
	Methods     []string
	Statuses    []int
	HeaderRegex map[string]*regexp.Regexp
	BodyRegex   *regexp.Regexp
	Timing      *Timing
}

// Extractor pulls named fields out of the matched steps via regex capture
// groups, a declarative extract(steps) -> map.
type Extractor struct {
	// Field is the output key; Step is the index into the pattern's Steps;
	// Source selects where to apply Regex (url, body, header:<name>).
	Field  string
	Step   int
	Source string
	Regex  *regexp.Regexp
}

// AuthPattern is one named entry in the library.
type AuthPattern struct {
	ID                string
	BaseConfidence    float64
	Steps             []Step
	Extractors        []Extractor
	TokenHintPatterns []*regexp.Regexp
}

// Match is the result of a successful pattern match.
type Match struct {
	PatternID  string
	Confidence float64
	Steps      []int
	Extracted  map[string]string
}

// Matches checks whether entry satisfies every constraint of step,
// case-insensitively for header names (regexes themselves should use
// (?i) when case-insensitive value matching is desired).
func (s Step) Matches(entry harmodel.HarEntry) bool {
	if s.URLRegex != nil && !s.URLRegex.MatchString(entry.Request.URL) {
		return false
	}
	if len(s.Methods) > 0 {
		ok := false
		for _, m := range s.Methods {
			if sameMethod(m, entry.Request.Method) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if len(s.Statuses) > 0 {
		ok := false
		for _, st := range s.Statuses {
			if st == entry.Response.Status {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	for name, re := range s.HeaderRegex {
		v, found := harmodel.HeaderValue(entry.Request.Headers, name)
		if !found {
			v, found = harmodel.HeaderValue(entry.Response.Headers, name)
		}
		if !found || !re.MatchString(v) {
			return false
		}
	}
	if s.BodyRegex != nil {
		body := entry.Response.Content.Text
		if entry.Request.PostData != nil {
			body += entry.Request.PostData.Text
		}
		if !s.BodyRegex.MatchString(body) {
			return false
		}
	}
	return true
}

func sameMethod(a, b string) bool {
	return upper(a) == upper(b)
}

func upper(s string) string {
	out := []byte(s)
	for i, c := range out {
		if 'a' <= c && c <= 'z' {
			out[i] = c - ('a' - 'A')
		}
	}
	return string(out)
}

// HasTokens reports whether any detected token touches the given entry
// index, used for the match-confidence boost.
type HasTokens func(entryIndex int) bool

// Match attempts a greedy prefix match of p starting at entries[start],
// consuming entries start, start+1, ... until every step is satisfied or
// the entries run out. entries must be in critical-path order
// with their original indices preserved in originalIndex.
func (p AuthPattern) Match(entries []harmodel.HarEntry, originalIndex []int, start int, hasTokens HasTokens) (Match, bool) {
	steps := make([]int, 0, len(p.Steps))
	var lastMatched *harmodel.HarEntry
	var delays []time.Duration

	cursor := start
	for _, step := range p.Steps {
		matched := -1
		for cursor < len(entries) {
			e := entries[cursor]
			if step.Matches(e) {
				if step.Timing != nil && lastMatched != nil {
					delay := e.StartedAt.Sub(lastMatched.StartedAt)
					if delay < step.Timing.Min || delay > step.Timing.Max {
						cursor++
						continue
					}
				}
				matched = cursor
				break
			}
			cursor++
		}
		if matched == -1 {
			return Match{}, false
		}
		if lastMatched != nil {
			delays = append(delays, entries[matched].StartedAt.Sub(lastMatched.StartedAt))
		}
		e := entries[matched]
		lastMatched = &e
		steps = append(steps, originalIndex[matched])
		cursor = matched + 1
	}

	confidence := p.BaseConfidence
	if len(delays) >= 2 {
		mean, std := meanStd(delays)
		if mean > 0 && std > mean/2 {
			confidence *= 0.8
		}
	}
	if hasTokens != nil {
		for _, idx := range steps {
			if hasTokens(idx) {
				confidence *= 1.1
				break
			}
		}
	}
	if confidence > 1.0 {
		confidence = 1.0
	}

	extracted := p.extract(entries, steps, originalIndex)

	return Match{
		PatternID:  p.ID,
		Confidence: confidence,
		Steps:      steps,
		Extracted:  extracted,
	}, true
}

func (p AuthPattern) extract(entries []harmodel.HarEntry, matchedOriginalIdx []int, originalIndex []int) map[string]string {
	out := make(map[string]string)
	posByOriginal := make(map[int]int, len(originalIndex))
	for pos, orig := range originalIndex {
		posByOriginal[orig] = pos
	}

	for _, ex := range p.Extractors {
		if ex.Step >= len(matchedOriginalIdx) {
			continue
		}
		origIdx := matchedOriginalIdx[ex.Step]
		pos, ok := posByOriginal[origIdx]
		if !ok {
			continue
		}
		entry := entries[pos]
		var source string
		switch {
		case ex.Source == "url":
			source = entry.Request.URL
		case ex.Source == "body":
			source = entry.Response.Content.Text
		case len(ex.Source) > 7 && ex.Source[:7] == "header:":
			name := ex.Source[7:]
			v, _ := harmodel.HeaderValue(entry.Response.Headers, name)
			source = v
		}
		if ex.Regex == nil {
			continue
		}
		m := ex.Regex.FindStringSubmatch(source)
		if len(m) >= 2 {
			out[ex.Field] = m[1]
		}
	}
	return out
}

func meanStd(ds []time.Duration) (mean, std float64) {
	sum := 0.0
	for _, d := range ds {
		sum += float64(d)
	}
	mean = sum / float64(len(ds))
	var variance float64
	for _, d := range ds {
		diff := float64(d) - mean
		variance += diff * diff
	}
	variance /= float64(len(ds))
	std = math.Sqrt(variance)
	return mean, std
}

// MatchAll attempts every pattern in the library at every starting index
// of the critical path, returning matches sorted by confidence descending
// with ties broken by earliest start.
func MatchAll(library []AuthPattern, entries []harmodel.HarEntry, originalIndex []int, hasTokens HasTokens) []Match {
	type withStart struct {
		Match
		start int
	}
	var all []withStart

	for _, p := range library {
		for start := 0; start < len(entries); start++ {
			if m, ok := p.Match(entries, originalIndex, start, hasTokens); ok {
				all = append(all, withStart{m, start})
			}
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Confidence != all[j].Confidence {
			return all[i].Confidence > all[j].Confidence
		}
		return all[i].start < all[j].start
	})

	out := make([]Match, len(all))
	for i, m := range all {
		out[i] = m.Match
	}
	return out
}
