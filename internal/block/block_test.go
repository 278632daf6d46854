package block

import (
	"testing"

	"github.com/hartools/har-lolicode/internal/config"
	"github.com/hartools/har-lolicode/internal/harmodel"
	"github.com/hartools/har-lolicode/internal/token"
	"github.com/stretchr/testify/assert"
)

func TestBuildSubstitutesCredentialsAndToken(t *testing.T) {
	entries := []harmodel.HarEntry{
		{
			Request: harmodel.Request{
				Method: "POST", URL: "https://example.com/login",
				Headers: []harmodel.Header{{Name: "Content-Type", Value: "application/x-www-form-urlencoded"}},
				PostData: &harmodel.PostData{
					Text: "_token=abc123&username=u&password=p",
					Params: []harmodel.NVPair{
						{Name: "_token", Value: "abc123"},
						{Name: "username", Value: "u"},
						{Name: "password", Value: "p"},
					},
				},
			},
			Response: harmodel.Response{Status: 200},
		},
	}

	detected := []token.Detected{
		{Name: "_token", Value: "abc123", Classification: token.CSRFToken, SourceEntries: []int{}},
	}

	cfg := config.Default()
	ir := Build(entries, []int{0}, nil, detected, cfg)

	req, ok := ir[0].(Request)
	if !assert.True(t, ok) {
		return
	}
	assert.Contains(t, req.BodyTemplate, "<@_token>")
	assert.Contains(t, req.BodyTemplate, "<USERNAME>")
	assert.Contains(t, req.BodyTemplate, "<PASSWORD>")
}

func TestBuildEmitsParseOnceForFirstSighting(t *testing.T) {
	entries := []harmodel.HarEntry{
		{Request: harmodel.Request{Method: "GET", URL: "https://example.com/login"}, Response: harmodel.Response{Status: 200}},
		{Request: harmodel.Request{Method: "POST", URL: "https://example.com/login"}, Response: harmodel.Response{Status: 200}},
	}
	detected := []token.Detected{
		{Name: "csrf_token", Value: "zzz", Classification: token.CSRFToken, SourceEntries: []int{0}},
	}

	cfg := config.Default()
	ir := Build(entries, []int{0, 1}, nil, detected, cfg)

	parseCount := 0
	for _, b := range ir {
		if _, ok := b.(Parse); ok {
			parseCount++
		}
	}
	assert.Equal(t, 1, parseCount)
}

func TestBuildWrapsWithErrorHandlingWhenEnabled(t *testing.T) {
	entries := []harmodel.HarEntry{
		{Request: harmodel.Request{Method: "GET", URL: "https://example.com/"}, Response: harmodel.Response{Status: 200}},
	}
	cfg := config.Default()
	cfg.CodeGeneration.ErrorHandling = true

	ir := Build(entries, []int{0}, nil, nil, cfg)
	assert.Len(t, ir, 1)
	_, ok := ir[0].(Try)
	assert.True(t, ok)
}
