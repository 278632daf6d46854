package harmodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateEntry(t *testing.T) {
	tests := []struct {
		name    string
		entry   *RawEntry
		wantErr bool
	}{
		{
			name: "valid entry",
			entry: &RawEntry{
				Request:  &RawRequest{Method: "GET", URL: "https://example.com", Headers: []NVPair{}},
				Response: &RawResponse{Status: 200, Headers: []NVPair{}},
			},
			wantErr: false,
		},
		{
			name:    "missing request",
			entry:   &RawEntry{Response: &RawResponse{Headers: []NVPair{}}},
			wantErr: true,
		},
		{
			name: "empty url",
			entry: &RawEntry{
				Request:  &RawRequest{Method: "GET", Headers: []NVPair{}},
				Response: &RawResponse{Headers: []NVPair{}},
			},
			wantErr: true,
		},
		{
			name: "missing response",
			entry: &RawEntry{
				Request: &RawRequest{Method: "GET", URL: "https://example.com", Headers: []NVPair{}},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEntry(0, tt.entry)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestToEntryPreservesHeaderOrder(t *testing.T) {
	raw := &RawEntry{
		StartedDateTime: "2024-01-15T10:00:00.000Z",
		Request: &RawRequest{
			Method:  "POST",
			URL:     "https://example.com/login",
			Headers: []NVPair{{Name: "A", Value: "1"}, {Name: "B", Value: "2"}},
		},
		Response: &RawResponse{Status: 200, Headers: []NVPair{}},
	}

	entry := ToEntry(3, raw)
	assert.Equal(t, 3, entry.Index)
	assert.Equal(t, "A", entry.Request.Headers[0].Name)
	assert.Equal(t, "B", entry.Request.Headers[1].Name)
}

func TestHeaderValueCaseInsensitive(t *testing.T) {
	headers := []Header{{Name: "Content-Type", Value: "application/json"}}
	v, ok := HeaderValue(headers, "content-type")
	assert.True(t, ok)
	assert.Equal(t, "application/json", v)
}
