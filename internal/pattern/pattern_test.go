package pattern

import (
	"testing"
	"time"

	"github.com/hartools/har-lolicode/internal/harmodel"
	"github.com/stretchr/testify/assert"
)

func TestFormAuthCSRFMatches(t *testing.T) {
	now := time.Now()
	entries := []harmodel.HarEntry{
		{
			StartedAt: now,
			Request:   harmodel.Request{Method: "GET", URL: "https://example.com/login", Headers: []harmodel.Header{}},
			Response: harmodel.Response{
				Status:  200,
				Headers: []harmodel.Header{},
				Content: harmodel.Content{Text: `<input type="hidden" name="_token" value="abc123"/>`},
			},
		},
		{
			StartedAt: now.Add(500 * time.Millisecond),
			Request: harmodel.Request{
				Method: "POST", URL: "https://example.com/login", Headers: []harmodel.Header{},
				PostData: &harmodel.PostData{Text: "_token=abc123&username=u&password=p"},
			},
			Response: harmodel.Response{Status: 200, Headers: []harmodel.Header{}},
		},
	}

	p := formAuthCSRF()
	m, ok := p.Match(entries, []int{0, 1}, 0, nil)
	assert.True(t, ok)
	assert.GreaterOrEqual(t, m.Confidence, 0.8)
	assert.Equal(t, "abc123", m.Extracted["csrf_token"])
	assert.Equal(t, []int{0, 1}, m.Steps)
}

func TestOAuth2Match(t *testing.T) {
	now := time.Now()
	entries := []harmodel.HarEntry{
		{
			StartedAt: now,
			Request:   harmodel.Request{Method: "GET", URL: "https://idp/oauth/authorize?client_id=c&state=S1", Headers: []harmodel.Header{}},
			Response:  harmodel.Response{Status: 200, Headers: []harmodel.Header{}},
		},
		{
			StartedAt: now.Add(time.Second),
			Request: harmodel.Request{
				Method: "POST", URL: "https://idp/oauth/token", Headers: []harmodel.Header{},
				PostData: &harmodel.PostData{Text: "code=X&client_id=c"},
			},
			Response: harmodel.Response{
				Status:  200,
				Headers: []harmodel.Header{},
				Content: harmodel.Content{Text: `{"access_token":"T"}`},
			},
		},
	}

	p := oauth2AuthCode()
	m, ok := p.Match(entries, []int{0, 1}, 0, nil)
	assert.True(t, ok)
	assert.GreaterOrEqual(t, m.Confidence, 0.9)
	assert.Equal(t, "S1", m.Extracted["state"])
	assert.Equal(t, "T", m.Extracted["access_token"])
}

func TestMatchAllSortsByConfidenceThenStart(t *testing.T) {
	now := time.Now()
	entries := []harmodel.HarEntry{
		{
			StartedAt: now,
			Request:   harmodel.Request{Method: "GET", URL: "https://example.com/login", Headers: []harmodel.Header{}},
			Response:  harmodel.Response{Status: 200, Headers: []harmodel.Header{}, Content: harmodel.Content{Text: `name="_token" value="abc"`}},
		},
		{
			StartedAt: now.Add(200 * time.Millisecond),
			Request: harmodel.Request{
				Method: "POST", URL: "https://example.com/login", Headers: []harmodel.Header{},
				PostData: &harmodel.PostData{Text: "_token=abc&username=u&password=p"},
			},
			Response: harmodel.Response{Status: 200, Headers: []harmodel.Header{}},
		},
	}

	matches := MatchAll(DefaultLibrary(), entries, []int{0, 1}, nil)
	for i := 1; i < len(matches); i++ {
		assert.GreaterOrEqual(t, matches[i-1].Confidence, matches[i].Confidence)
	}
}
