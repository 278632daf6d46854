package score

import (
	"testing"

	"github.com/hartools/har-lolicode/internal/classify"
	"github.com/hartools/har-lolicode/internal/config"
	"github.com/hartools/har-lolicode/internal/harmodel"
	"github.com/stretchr/testify/assert"
)

func mkEntry(method, url string) classify.Classified {
	return classify.Classify(harmodel.HarEntry{
		Request:  harmodel.Request{Method: method, URL: url, Headers: []harmodel.Header{}},
		Response: harmodel.Response{Status: 200, Headers: []harmodel.Header{}},
	})
}

func TestScoreStaticAssetsDropped(t *testing.T) {
	cfg := config.Default()
	entries := []classify.Classified{
		mkEntry("GET", "https://example.com/app.css"),
		mkEntry("POST", "https://example.com/api/auth/login"),
	}

	scored := Score(entries, cfg)
	survivors := Filter(scored)

	assert.Len(t, survivors, 1)
	assert.Contains(t, survivors[0].Entry.Request.URL, "login")
}

func TestFinalizeClampsToThresholds(t *testing.T) {
	thresholds := config.ScoreThresholds{Minimum: 50, Optimal: 90}

	low := SubScores{Relevance: 10, Security: 10, Business: 10, Temporal: 10, Contextual: 10}
	finalLow, _ := Finalize(low, thresholds)
	assert.Equal(t, 0.0, finalLow)

	high := SubScores{Relevance: 95, Security: 95, Business: 95, Temporal: 95, Contextual: 95}
	finalHigh, _ := Finalize(high, thresholds)
	assert.Equal(t, 100.0, finalHigh)
}

func TestConfidenceIsBoundedAndNonNegative(t *testing.T) {
	thresholds := config.ScoreThresholds{Minimum: 0, Optimal: 100}
	sub := SubScores{Relevance: 100, Security: 0, Business: 50, Temporal: 50, Contextual: 0}
	_, conf := Finalize(sub, thresholds)
	assert.GreaterOrEqual(t, conf, 0.0)
	assert.LessOrEqual(t, conf, 1.0)
}
