// Package transition models the state machine over the matched pattern's
// steps, or infers one per-entry when no pattern matched.
package transition

import (
	"regexp"
	"strings"

	"github.com/hartools/har-lolicode/internal/harmodel"
	"github.com/hartools/har-lolicode/internal/pattern"
)

// State is one node of the inferred or pattern-derived state machine.
type State string

const (
	StateLoginPage          State = "LoginPage"
	StateAuthSubmission     State = "AuthSubmission"
	StateRedirect           State = "Redirect"
	StateSessionEstablished State = "SessionEstablished"
	StateAuthenticated      State = "Authenticated"
	StateGeneral            State = "General"
)

// Transition is one inferred StateTransition.
type Transition struct {
	From             State
	To               State
	TriggerEntryIdx  int
	Confidence       float64
}

var (
	authURLRegex    = regexp.MustCompile(`(?i)(login|signin|sign-in|auth)`)
	sessionCookieRe = regexp.MustCompile(`(?i)(session|auth)`)
)

// InferState assigns a per-entry state using URL/method/response rules,
// the fallback used when no declarative pattern matched.
func InferState(e harmodel.HarEntry) State {
	method := strings.ToUpper(e.Request.Method)
	isAuthURL := authURLRegex.MatchString(e.Request.URL)

	switch {
	case method == "GET" && isAuthURL:
		return StateLoginPage
	case method == "POST" && isAuthURL:
		return StateAuthSubmission
	case e.Response.Status >= 300 && e.Response.Status < 400:
		return StateRedirect
	case hasSessionSetCookie(e):
		return StateSessionEstablished
	case e.Response.Status >= 200 && e.Response.Status < 300 && isAuthURL:
		return StateAuthenticated
	default:
		return StateGeneral
	}
}

func hasSessionSetCookie(e harmodel.HarEntry) bool {
	for _, c := range e.Response.Cookies {
		if sessionCookieRe.MatchString(c.Name) {
			return true
		}
	}
	return false
}

// FromStates infers a transition for every consecutive pair of entries
// whose inferred states differ.
func FromStates(entries []harmodel.HarEntry, originalIndex []int) []Transition {
	var out []Transition
	if len(entries) < 2 {
		return out
	}

	states := make([]State, len(entries))
	for i, e := range entries {
		states[i] = InferState(e)
	}

	for i := 1; i < len(entries); i++ {
		if states[i] == states[i-1] {
			continue
		}
		out = append(out, Transition{
			From:            states[i-1],
			To:              states[i],
			TriggerEntryIdx: originalIndex[i],
			Confidence:      transitionConfidence(entries[i-1], entries[i]),
		})
	}
	return out
}

// FromPatternMatch reads transitions off the best pattern match's steps,
// naming states after the step semantics.
func FromPatternMatch(entries []harmodel.HarEntry, originalIndex []int, m pattern.Match) []Transition {
	posByOriginal := make(map[int]int, len(originalIndex))
	for pos, orig := range originalIndex {
		posByOriginal[orig] = pos
	}

	var out []Transition
	for i := 1; i < len(m.Steps); i++ {
		prevPos, okA := posByOriginal[m.Steps[i-1]]
		curPos, okB := posByOriginal[m.Steps[i]]
		if !okA || !okB {
			continue
		}
		from := InferState(entries[prevPos])
		to := InferState(entries[curPos])
		if from == to {
			to = stepState(i)
		}
		out = append(out, Transition{
			From:            from,
			To:              to,
			TriggerEntryIdx: m.Steps[i],
			Confidence:      transitionConfidence(entries[prevPos], entries[curPos]),
		})
	}
	return out
}

func stepState(stepIndex int) State {
	switch stepIndex {
	case 0:
		return StateLoginPage
	case 1:
		return StateAuthSubmission
	default:
		return StateSessionEstablished
	}
}

func transitionConfidence(prev, cur harmodel.HarEntry) float64 {
	conf := 0.7
	if referer, ok := harmodel.HeaderValue(cur.Request.Headers, "Referer"); ok && strings.Contains(referer, prev.Request.URL) {
		conf += 0.2
	}
	setByPrev := harmodel.CookieNames(prev.Response.Cookies)
	sentByCur := harmodel.CookieNames(cur.Request.Cookies)
	for name := range setByPrev {
		if _, ok := sentByCur[name]; ok {
			conf += 0.1
			break
		}
	}
	if conf > 1.0 {
		conf = 1.0
	}
	return conf
}

// CriticalComponents reports whether the three components the
// flow-completeness formula needs are present among entries.
func CriticalComponents(entries []harmodel.HarEntry) (loginPageGET, authSubmitPOST, sessionEstablished bool) {
	for _, e := range entries {
		switch InferState(e) {
		case StateLoginPage:
			loginPageGET = true
		case StateAuthSubmission:
			authSubmitPOST = true
		case StateSessionEstablished:
			sessionEstablished = true
		}
	}
	return
}

// FlowCompleteness computes the QA/reporting completeness score.
func FlowCompleteness(primaryPatternConfidence float64, entries []harmodel.HarEntry, transitions []Transition) float64 {
	loginPage, authSubmit, session := CriticalComponents(entries)
	presentCount := 0
	if loginPage {
		presentCount++
	}
	if authSubmit {
		presentCount++
	}
	if session {
		presentCount++
	}
	criticalComponentsPresent := float64(presentCount) / 3.0

	coverage := 0.0
	if len(entries) > 1 {
		coverage = float64(len(transitions)) / float64(len(entries)-1)
	}

	a := primaryPatternConfidence * 0.7
	b := criticalComponentsPresent * 0.6
	c := coverage * 0.8

	max := a
	if b > max {
		max = b
	}
	if c > max {
		max = c
	}
	return max
}
