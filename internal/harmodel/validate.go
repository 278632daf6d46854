package harmodel

import (
	"fmt"
	"time"
)

// ValidationError explains why a single raw entry was rejected before
// conversion; the streaming parser reports these on its error channel
// without aborting the run (§4.1, §7 EntrySkipped).
type ValidationError struct {
	Index  int
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("entry %d: %s", e.Index, e.Reason)
}

// ValidateEntry checks that request and response are present, that
// request.url and request.method are non-empty, and that request.headers
// and response.headers are present. response.status is not checked here: a
// missing status reads as 0, and a non-numeric one fails ParseTopLevel for
// the whole document.
func ValidateEntry(index int, e *RawEntry) error {
	if e.Request == nil {
		return &ValidationError{index, "missing request"}
	}
	if e.Request.URL == "" {
		return &ValidationError{index, "request.url is empty"}
	}
	if e.Request.Method == "" {
		return &ValidationError{index, "request.method is empty"}
	}
	if e.Request.Headers == nil {
		return &ValidationError{index, "request.headers is not an array"}
	}
	if e.Response == nil {
		return &ValidationError{index, "missing response"}
	}
	if e.Response.Headers == nil {
		return &ValidationError{index, "response.headers is not an array"}
	}
	return nil
}

// ToEntry converts a validated RawEntry into the immutable HarEntry used by
// the rest of the pipeline. Callers must have run ValidateEntry first.
func ToEntry(index int, e *RawEntry) HarEntry {
	started, err := time.Parse(time.RFC3339, e.StartedDateTime)
	if err != nil {
		started, err = time.Parse(time.RFC3339Nano, e.StartedDateTime)
	}
	if err != nil {
		started = time.Time{}
	}

	req := Request{
		Method:      e.Request.Method,
		URL:         e.Request.URL,
		HTTPVersion: e.Request.HTTPVersion,
		Headers:     e.Request.Headers,
		Query:       e.Request.QueryString,
		Cookies:     e.Request.Cookies,
	}
	if e.Request.PostData != nil {
		params := make([]NVPair, 0, len(e.Request.PostData.Params))
		for _, p := range e.Request.PostData.Params {
			params = append(params, NVPair{Name: p.Name, Value: p.Value})
		}
		req.PostData = &PostData{
			MimeType: e.Request.PostData.MimeType,
			Text:     e.Request.PostData.Text,
			Params:   params,
		}
	}

	resp := Response{
		Status:      e.Response.Status,
		HTTPVersion: e.Response.HTTPVersion,
		Headers:     e.Response.Headers,
		Cookies:     e.Response.Cookies,
		RedirectURL: e.Response.RedirectURL,
		Content: Content{
			Size:     e.Response.Content.Size,
			MimeType: e.Response.Content.MimeType,
			Text:     e.Response.Content.Text,
			Encoding: e.Response.Content.Encoding,
		},
	}

	return HarEntry{
		Index:     index,
		StartedAt: started,
		ElapsedMs: e.Time,
		Request:   req,
		Response:  resp,
	}
}
