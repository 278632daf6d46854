package harmodel

import "encoding/json"

// RawHAR mirrors the top-level HAR document shape closely enough to
// unmarshal untrusted JSON before structural validation and conversion into
// HarEntry. Fields the pipeline never reads are not declared, so
// encoding/json skips them; a declared field holding the wrong JSON type
// fails the whole unmarshal.
type RawHAR struct {
	Log RawLog `json:"log"`
}

type RawLog struct {
	Version string     `json:"version"`
	Entries []RawEntry `json:"entries"`
}

type RawEntry struct {
	StartedDateTime string       `json:"startedDateTime"`
	Time            float64      `json:"time"`
	Request         *RawRequest  `json:"request"`
	Response        *RawResponse `json:"response"`
}

type RawRequest struct {
	Method      string          `json:"method"`
	URL         string          `json:"url"`
	HTTPVersion string          `json:"httpVersion"`
	Headers     []NVPair        `json:"headers"`
	QueryString []NVPair        `json:"queryString"`
	Cookies     []Cookie        `json:"cookies"`
	PostData    *RawPostData    `json:"postData,omitempty"`
}

type RawPostData struct {
	MimeType string          `json:"mimeType"`
	Text     string          `json:"text"`
	Params   []RawPostParam  `json:"params,omitempty"`
}

type RawPostParam struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type RawResponse struct {
	Status      int         `json:"status"`
	HTTPVersion string      `json:"httpVersion"`
	Headers     []NVPair    `json:"headers"`
	Cookies     []Cookie    `json:"cookies"`
	Content     RawContent  `json:"content"`
	RedirectURL string      `json:"redirectURL"`
}

type RawContent struct {
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
	Text     string `json:"text,omitempty"`
	Encoding string `json:"encoding,omitempty"`
}

// SupportedVersions are the HAR versions this pipeline was validated
// against. Anything else is accepted but produces a warning (§4.1).
var SupportedVersions = map[string]bool{"1.1": true, "1.2": true}

// ParseTopLevel validates that raw is a well-formed HAR document at the
// structural level required by §4.1: an object with log.entries as an
// array. It does not validate individual entries.
func ParseTopLevel(data []byte) (*RawHAR, error) {
	var probe struct {
		Log *struct {
			Entries json.RawMessage `json:"entries"`
		} `json:"log"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}
	if probe.Log == nil || probe.Log.Entries == nil {
		return nil, errMissingEntries
	}
	var entriesProbe []json.RawMessage
	if err := json.Unmarshal(probe.Log.Entries, &entriesProbe); err != nil {
		return nil, errMissingEntries
	}

	var har RawHAR
	if err := json.Unmarshal(data, &har); err != nil {
		return nil, err
	}
	return &har, nil
}

var errMissingEntries = jsonShapeError("log.entries must be an array")

type jsonShapeError string

func (e jsonShapeError) Error() string { return string(e) }
