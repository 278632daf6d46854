package harparse

import (
	"context"
	"testing"

	"github.com/hartools/har-lolicode/internal/progress"
	"github.com/stretchr/testify/assert"
)

func defaultLimits() Limits {
	return Limits{BatchSize: 100, MaxEntrySize: 10 << 20, LargeResponseThreshold: 1 << 20}
}

func TestParseValidHAR(t *testing.T) {
	data := []byte(`{"log":{"version":"1.2","entries":[
		{"startedDateTime":"2024-01-01T00:00:00Z","time":12,
		 "request":{"method":"GET","url":"https://example.com/login","httpVersion":"HTTP/1.1","headers":[],"queryString":[],"cookies":[]},
		 "response":{"status":200,"httpVersion":"HTTP/1.1","headers":[],"cookies":[],"content":{"size":0,"mimeType":"text/html"},"redirectURL":""}}
	]}}`)

	result, err := Parse(context.Background(), data, defaultLimits(), progress.NopSink{})
	assert.NoError(t, err)
	assert.Len(t, result.Entries, 1)
	assert.Equal(t, 0, result.EntriesSkipped)
	assert.Equal(t, "GET", result.Entries[0].Request.Method)
}

func TestParseSkipsInvalidEntry(t *testing.T) {
	data := []byte(`{"log":{"version":"1.2","entries":[
		{"startedDateTime":"2024-01-01T00:00:00Z","time":1,
		 "request":{"method":"GET","url":"","httpVersion":"HTTP/1.1","headers":[],"queryString":[],"cookies":[]},
		 "response":{"status":200,"httpVersion":"HTTP/1.1","headers":[],"cookies":[],"content":{"size":0,"mimeType":"text/html"},"redirectURL":""}}
	]}}`)

	result, err := Parse(context.Background(), data, defaultLimits(), progress.NopSink{})
	assert.NoError(t, err)
	assert.Len(t, result.Entries, 0)
	assert.Equal(t, 1, result.EntriesSkipped)
}

func TestParseEmptyEntriesReturnsNoEntries(t *testing.T) {
	data := []byte(`{"log":{"version":"1.2","entries":[]}}`)
	result, err := Parse(context.Background(), data, defaultLimits(), progress.NopSink{})
	assert.NoError(t, err)
	assert.Len(t, result.Entries, 0)
}

func TestParseDerivesFormURLEncodedParams(t *testing.T) {
	data := []byte(`{"log":{"version":"1.2","entries":[
		{"startedDateTime":"2024-01-01T00:00:00Z","time":1,
		 "request":{"method":"POST","url":"https://example.com/login","httpVersion":"HTTP/1.1","headers":[],"queryString":[],"cookies":[],
		   "postData":{"mimeType":"application/x-www-form-urlencoded","text":"username=u&password=p"}},
		 "response":{"status":200,"httpVersion":"HTTP/1.1","headers":[],"cookies":[],"content":{"size":0,"mimeType":"text/html"},"redirectURL":""}}
	]}}`)

	result, err := Parse(context.Background(), data, defaultLimits(), progress.NopSink{})
	assert.NoError(t, err)
	if assert.Len(t, result.Entries, 1) {
		params := result.Entries[0].Request.PostData.Params
		assert.Len(t, params, 2)
	}
}

func TestParseAbortsOnCancellation(t *testing.T) {
	data := []byte(`{"log":{"version":"1.2","entries":[
		{"startedDateTime":"2024-01-01T00:00:00Z","time":1,
		 "request":{"method":"GET","url":"https://example.com/","httpVersion":"HTTP/1.1","headers":[],"queryString":[],"cookies":[]},
		 "response":{"status":200,"httpVersion":"HTTP/1.1","headers":[],"cookies":[],"content":{"size":0,"mimeType":"text/html"},"redirectURL":""}}
	]}}`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := Parse(ctx, data, defaultLimits(), progress.NopSink{})
	assert.NoError(t, err)
	assert.True(t, result.Aborted)
}
