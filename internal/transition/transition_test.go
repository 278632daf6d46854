package transition

import (
	"testing"
	"time"

	"github.com/hartools/har-lolicode/internal/harmodel"
	"github.com/stretchr/testify/assert"
)

func TestInferStateLoginAndSubmission(t *testing.T) {
	get := harmodel.HarEntry{Request: harmodel.Request{Method: "GET", URL: "https://example.com/login"}, Response: harmodel.Response{Status: 200}}
	post := harmodel.HarEntry{Request: harmodel.Request{Method: "POST", URL: "https://example.com/login"}, Response: harmodel.Response{Status: 200}}

	assert.Equal(t, StateLoginPage, InferState(get))
	assert.Equal(t, StateAuthSubmission, InferState(post))
}

func TestInferStateSessionEstablishedFromCookie(t *testing.T) {
	e := harmodel.HarEntry{
		Request:  harmodel.Request{Method: "GET", URL: "https://example.com/dashboard"},
		Response: harmodel.Response{Status: 200, Cookies: []harmodel.Cookie{{Name: "session_id", Value: "x"}}},
	}
	assert.Equal(t, StateSessionEstablished, InferState(e))
}

func TestFromStatesEmitsOnlyOnChange(t *testing.T) {
	now := time.Now()
	entries := []harmodel.HarEntry{
		{StartedAt: now, Request: harmodel.Request{Method: "GET", URL: "https://example.com/login"}, Response: harmodel.Response{Status: 200}},
		{StartedAt: now.Add(time.Second), Request: harmodel.Request{Method: "GET", URL: "https://example.com/login"}, Response: harmodel.Response{Status: 200}},
		{StartedAt: now.Add(2 * time.Second), Request: harmodel.Request{Method: "POST", URL: "https://example.com/login"}, Response: harmodel.Response{Status: 200}},
	}

	transitions := FromStates(entries, []int{0, 1, 2})
	assert.Len(t, transitions, 1)
	assert.Equal(t, StateLoginPage, transitions[0].From)
	assert.Equal(t, StateAuthSubmission, transitions[0].To)
	assert.Equal(t, 2, transitions[0].TriggerEntryIdx)
}

func TestTransitionConfidenceBoostedByRefererAndCookie(t *testing.T) {
	now := time.Now()
	prev := harmodel.HarEntry{
		StartedAt: now,
		Request:   harmodel.Request{Method: "GET", URL: "https://example.com/login"},
		Response:  harmodel.Response{Status: 200, Cookies: []harmodel.Cookie{{Name: "sid", Value: "abc"}}},
	}
	cur := harmodel.HarEntry{
		StartedAt: now.Add(time.Second),
		Request: harmodel.Request{
			Method:  "POST",
			URL:     "https://example.com/login",
			Headers: []harmodel.Header{{Name: "Referer", Value: "https://example.com/login"}},
			Cookies: []harmodel.Cookie{{Name: "sid", Value: "abc"}},
		},
		Response: harmodel.Response{Status: 200},
	}

	conf := transitionConfidence(prev, cur)
	assert.InDelta(t, 1.0, conf, 1e-9)
}

func TestFlowCompletenessRewardsFullFlow(t *testing.T) {
	entries := []harmodel.HarEntry{
		{Request: harmodel.Request{Method: "GET", URL: "https://example.com/login"}, Response: harmodel.Response{Status: 200}},
		{Request: harmodel.Request{Method: "POST", URL: "https://example.com/login"}, Response: harmodel.Response{Status: 200}},
		{Request: harmodel.Request{Method: "GET", URL: "https://example.com/dashboard"}, Response: harmodel.Response{Status: 200, Cookies: []harmodel.Cookie{{Name: "session_id", Value: "x"}}}},
	}
	transitions := FromStates(entries, []int{0, 1, 2})

	score := FlowCompleteness(0.9, entries, transitions)
	assert.Greater(t, score, 0.6)
	assert.LessOrEqual(t, score, 1.0)
}
