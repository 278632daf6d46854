package classify

import (
	"testing"

	"github.com/hartools/har-lolicode/internal/harmodel"
	"github.com/stretchr/testify/assert"
)

func TestClassifyLoginPost(t *testing.T) {
	entry := harmodel.HarEntry{
		Request: harmodel.Request{
			Method:  "POST",
			URL:     "https://example.com/login",
			Headers: []harmodel.Header{{Name: "Content-Type", Value: "application/x-www-form-urlencoded"}},
			PostData: &harmodel.PostData{
				MimeType: "application/x-www-form-urlencoded",
				Params: []harmodel.NVPair{
					{Name: "username", Value: "bob"},
					{Name: "password", Value: "secret"},
				},
			},
		},
		Response: harmodel.Response{Status: 200, Headers: []harmodel.Header{}},
	}

	c := Classify(entry)
	_, isAuth := c.ResourceTypes[Authentication]
	_, isForm := c.ResourceTypes[FormSubmission]
	assert.True(t, isAuth)
	assert.True(t, isForm)
	assert.True(t, c.Characteristics.HasSensitiveData)
	assert.True(t, c.Characteristics.HasStateChange)
	assert.False(t, c.Characteristics.IsIdempotent)
}

func TestClassifyStaticAsset(t *testing.T) {
	entry := harmodel.HarEntry{
		Request:  harmodel.Request{Method: "GET", URL: "https://example.com/assets/app.css", Headers: []harmodel.Header{}},
		Response: harmodel.Response{Status: 200, Headers: []harmodel.Header{}},
	}

	c := Classify(entry)
	_, isStatic := c.ResourceTypes[StaticAsset]
	assert.True(t, isStatic)
	assert.True(t, c.Characteristics.IsIdempotent)
}

func TestClassifyUnknownFallback(t *testing.T) {
	entry := harmodel.HarEntry{
		Request:  harmodel.Request{Method: "GET", URL: "https://example.com/", Headers: []harmodel.Header{}},
		Response: harmodel.Response{Status: 200, Headers: []harmodel.Header{}},
	}

	c := Classify(entry)
	assert.NotEmpty(t, c.ResourceTypes)
}
