package correlate

import (
	"context"
	"testing"
	"time"

	"github.com/hartools/har-lolicode/internal/classify"
	"github.com/hartools/har-lolicode/internal/harmodel"
	"github.com/hartools/har-lolicode/internal/score"
	"github.com/stretchr/testify/assert"
)

func scoredEntry(t time.Time, method, url, referer string) score.ScoredEntry {
	var headers []harmodel.Header
	if referer != "" {
		headers = []harmodel.Header{{Name: "Referer", Value: referer}}
	} else {
		headers = []harmodel.Header{}
	}
	entry := harmodel.HarEntry{
		StartedAt: t,
		Request:   harmodel.Request{Method: method, URL: url, Headers: headers},
		Response:  harmodel.Response{Status: 200, Headers: []harmodel.Header{}},
	}
	return score.ScoredEntry{Classified: classify.Classify(entry), FinalScore: 80}
}

func TestMatrixIsSymmetricWithZeroDiagonal(t *testing.T) {
	now := time.Now()
	entries := []score.ScoredEntry{
		scoredEntry(now, "GET", "https://example.com/login", ""),
		scoredEntry(now.Add(100*time.Millisecond), "POST", "https://example.com/login", "https://example.com/login"),
	}

	m, err := Compute(context.Background(), entries)
	assert.NoError(t, err)
	assert.InDelta(t, 0, m.At(0, 0).Score, 1e-9)
	assert.InDelta(t, 0, m.At(1, 1).Score, 1e-9)
	assert.InDelta(t, m.At(0, 1).Score, m.At(1, 0).Score, 1e-9)
}

func TestUnrelatedEntriesFarApartCorrelateLow(t *testing.T) {
	now := time.Now()
	entries := []score.ScoredEntry{
		scoredEntry(now, "GET", "https://example.com/foo", ""),
		scoredEntry(now.Add(30*time.Second), "GET", "https://other.com/bar", ""),
	}

	m, err := Compute(context.Background(), entries)
	assert.NoError(t, err)
	assert.LessOrEqual(t, m.At(0, 1).Score, 0.03+1e-9)
}

func TestWalkCriticalPathNoDuplicates(t *testing.T) {
	now := time.Now()
	entries := []score.ScoredEntry{
		scoredEntry(now, "GET", "https://example.com/login", ""),
		scoredEntry(now.Add(50*time.Millisecond), "POST", "https://example.com/login", "https://example.com/login"),
		scoredEntry(now.Add(5*time.Second), "GET", "https://unrelated.com/", ""),
	}

	m, err := Compute(context.Background(), entries)
	assert.NoError(t, err)

	result := WalkCriticalPath(entries, m, defaultTau)
	seen := map[int]bool{}
	for _, idx := range result.Path {
		assert.False(t, seen[idx])
		seen[idx] = true
		assert.True(t, idx >= 0 && idx < len(entries))
	}
}

func TestNormalizePathCollapsesDynamicIDs(t *testing.T) {
	assert.Equal(t, []string{"users", "{id}"}, normalizePath([]string{"users", "42"}))
	assert.Equal(t, []string{"users", "{id}"}, normalizePath([]string{"users", "91"}))
	assert.Equal(t, []string{"login"}, normalizePath([]string{"login"}))
}

func TestURLPathFactorTreatsNumericIDsAsEquivalent(t *testing.T) {
	a := harmodel.HarEntry{Request: harmodel.Request{Method: "GET", URL: "https://example.com/users/42"}}
	b := harmodel.HarEntry{Request: harmodel.Request{Method: "GET", URL: "https://example.com/users/91"}}
	assert.Equal(t, 1.0, urlPathFactor(a, b))
}
