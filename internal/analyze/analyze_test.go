package analyze

import (
	"context"
	"testing"

	"github.com/hartools/har-lolicode/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestAnalyzeEmptyInputErrors(t *testing.T) {
	_, err := Analyze(context.Background(), []byte("  "), config.Default(), nil)
	if assert.Error(t, err) {
		pe, ok := err.(*PipelineError)
		assert.True(t, ok)
		assert.Equal(t, EmptyInput, pe.Kind)
	}
}

func TestAnalyzeNoEntriesErrors(t *testing.T) {
	har := []byte(`{"log":{"version":"1.2","entries":[]}}`)
	_, err := Analyze(context.Background(), har, config.Default(), nil)
	if assert.Error(t, err) {
		pe, ok := err.(*PipelineError)
		assert.True(t, ok)
		assert.Equal(t, NoRequests, pe.Kind)
	}
}

func TestAnalyzeSingleLoginGET(t *testing.T) {
	har := []byte(`{"log":{"version":"1.2","entries":[
		{"startedDateTime":"2024-01-01T00:00:00Z","time":1,
		 "request":{"method":"GET","url":"https://example.com/login","httpVersion":"HTTP/1.1","headers":[],"queryString":[],"cookies":[]},
		 "response":{"status":200,"httpVersion":"HTTP/1.1","headers":[],"cookies":[],"content":{"size":0,"mimeType":"text/html"},"redirectURL":""}}
	]}}`)

	result, err := Analyze(context.Background(), har, config.Default(), nil)
	assert.NoError(t, err)
	assert.Len(t, result.CriticalPath, 1)
	assert.Contains(t, result.Script, "REQUEST GET")
	assert.Contains(t, result.Script, "MARK")
}

func TestAnalyzeFormCSRFFlowMatchesPattern(t *testing.T) {
	har := []byte(`{"log":{"version":"1.2","entries":[
		{"startedDateTime":"2024-01-01T00:00:00.000Z","time":1,
		 "request":{"method":"GET","url":"https://example.com/login","httpVersion":"HTTP/1.1","headers":[],"queryString":[],"cookies":[]},
		 "response":{"status":200,"httpVersion":"HTTP/1.1","headers":[],"cookies":[],
		   "content":{"size":0,"mimeType":"text/html","text":"<input type=\"hidden\" name=\"_token\" value=\"abc123\"/>"},"redirectURL":""}},
		{"startedDateTime":"2024-01-01T00:00:00.500Z","time":1,
		 "request":{"method":"POST","url":"https://example.com/login","httpVersion":"HTTP/1.1","headers":[{"name":"Referer","value":"https://example.com/login"}],"queryString":[],"cookies":[],
		   "postData":{"mimeType":"application/x-www-form-urlencoded","text":"_token=abc123&username=u&password=p"}},
		 "response":{"status":200,"httpVersion":"HTTP/1.1","headers":[],"cookies":[],"content":{"size":0,"mimeType":"text/html"},"redirectURL":""}}
	]}}`)

	result, err := Analyze(context.Background(), har, config.Default(), nil)
	assert.NoError(t, err)
	assert.Len(t, result.CriticalPath, 2)

	found := false
	for _, m := range result.MatchedPatterns {
		if m.PatternID == "form_auth_csrf" {
			found = true
			assert.GreaterOrEqual(t, m.Confidence, 0.8)
		}
	}
	assert.True(t, found)
	assert.Contains(t, result.Script, "<@_token>")
}
