// Package block builds the ordered BlockIR from the
// critical path, its matched patterns and detected tokens.
package block

import (
	"encoding/json"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/hartools/har-lolicode/internal/config"
	"github.com/hartools/har-lolicode/internal/harmodel"
	"github.com/hartools/har-lolicode/internal/pattern"
	"github.com/hartools/har-lolicode/internal/token"
)

// ParseMethod selects the extraction strategy for a Parse block.
type ParseMethod string

const (
	ParseCssAttr ParseMethod = "CssAttr"
	ParseRegex   ParseMethod = "Regex"
	ParseJSONPath ParseMethod = "JsonPath"
)

// MarkStatus is the closed set of terminal statuses a Mark block can carry.
type MarkStatus string

const (
	MarkSuccess MarkStatus = "Success"
	MarkFailure MarkStatus = "Failure"
	MarkBan     MarkStatus = "Ban"
	MarkError   MarkStatus = "Error"
)

// IR is implemented by every block variant.
type IR interface{ isBlock() }

type Request struct {
	Method      string
	URL         string
	Headers     []harmodel.Header
	Cookies     []harmodel.Cookie
	ContentType string
	BodyTemplate string
}

type Parse struct {
	Source     string
	Method     ParseMethod
	Expression string
	OutputVar  string
}

type SetVariable struct {
	Name, Value string
}

type If struct {
	Cond           string
	Then, Else     []IR
}

type While struct {
	Cond string
	Body []IR
}

type Catch struct {
	Cond string
	IR   []IR
}

type Try struct {
	Try     []IR
	Catches []Catch
	Finally []IR
}

type Delay struct{ Ms int }

type Log struct{ Msg string }

type Mark struct {
	Status MarkStatus
	Msg    string
}

func (Request) isBlock()     {}
func (Parse) isBlock()       {}
func (SetVariable) isBlock() {}
func (If) isBlock()          {}
func (While) isBlock()       {}
func (Try) isBlock()         {}
func (Delay) isBlock()       {}
func (Log) isBlock()         {}
func (Mark) isBlock()        {}

// preserveHeaders is the allow-list of headers carried into emitted blocks.
var preserveHeaders = map[string]bool{
	"user-agent": true, "referer": true, "origin": true,
	"content-type": true, "accept": true, "accept-language": true,
}

var credentialFieldRe = regexp.MustCompile(`(?i)^(user(name)?|email|pass(word)?|pwd)$`)

// VarType names a variable classification. Build does not assign one to
// the variables it declares; the type comment on an emitted VAR line comes
// from the variable name alone (see emit's varTypeComment).
type VarType string

const successKeywords = `welcome|dashboard|logout|profile|account|home`
const failureKeywords = `invalid|incorrect|error|failed|denied|wrong`

// Build constructs the block IR for one critical-path flow.
func Build(entries []harmodel.HarEntry, originalIndex []int, matches []pattern.Match, detected []token.Detected, cfg config.AnalysisConfig) []IR {
	tokensByValue := indexTokensByValue(detected)
	parsedNames := map[string]bool{}

	var out []IR
	for pos, e := range entries {
		req := buildRequest(e, tokensByValue)
		out = append(out, req)

		for _, d := range firstSeenAt(detected, originalIndex[pos]) {
			if parsedNames[d.Name] {
				continue
			}
			parsedNames[d.Name] = true
			out = append(out, Parse{
				Source:     "response",
				Method:     ParseRegex,
				Expression: regexp.QuoteMeta(d.Value),
				OutputVar:  d.Name,
			})
		}
	}

	out = append(out, Mark{Status: MarkSuccess, Msg: successKeywords})
	out = append(out, Mark{Status: MarkFailure, Msg: failureKeywords})
	out = append(out, Mark{Status: MarkBan, Msg: "429"})

	if cfg.CodeGeneration.ErrorHandling {
		out = []IR{wrapWithErrorHandling(out)}
	}
	return out
}

func indexTokensByValue(detected []token.Detected) map[string]token.Detected {
	out := make(map[string]token.Detected, len(detected))
	for _, d := range detected {
		out[d.Value] = d
	}
	return out
}

func firstSeenAt(detected []token.Detected, originalIdx int) []token.Detected {
	var out []token.Detected
	for _, d := range detected {
		if len(d.SourceEntries) > 0 && d.SourceEntries[0] == originalIdx {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func buildRequest(e harmodel.HarEntry, tokensByValue map[string]token.Detected) Request {
	var headers []harmodel.Header
	for _, h := range e.Request.Headers {
		lower := strings.ToLower(h.Name)
		if preserveHeaders[lower] || strings.HasPrefix(lower, "x-") {
			headers = append(headers, harmodel.Header{Name: h.Name, Value: substitutePlaceholders(h.Value, tokensByValue)})
		}
	}

	contentType := ""
	if ct, ok := harmodel.HeaderValue(e.Request.Headers, "Content-Type"); ok {
		contentType = ct
	}

	body := ""
	if e.Request.PostData != nil {
		body = rewriteBody(*e.Request.PostData, contentType, tokensByValue)
	}

	return Request{
		Method:       strings.ToUpper(e.Request.Method),
		URL:          e.Request.URL,
		Headers:      headers,
		Cookies:      e.Request.Cookies,
		ContentType:  contentType,
		BodyTemplate: body,
	}
}

func substitutePlaceholders(value string, tokensByValue map[string]token.Detected) string {
	if d, ok := tokensByValue[value]; ok {
		return "<@" + d.Name + ">"
	}
	return value
}

func rewriteBody(pd harmodel.PostData, contentType string, tokensByValue map[string]token.Detected) string {
	if strings.Contains(contentType, "json") {
		var parsed map[string]any
		if err := json.Unmarshal([]byte(pd.Text), &parsed); err == nil {
			rewriteJSON(parsed, tokensByValue)
			out, err := json.Marshal(parsed)
			if err == nil {
				return string(out)
			}
		}
		return pd.Text
	}

	pairs := make([]string, 0, len(pd.Params))
	for _, p := range pd.Params {
		pairs = append(pairs, p.Name+"="+placeholderFor(p.Name, p.Value, tokensByValue))
	}
	if len(pairs) == 0 && pd.Text != "" {
		return pd.Text
	}
	return strings.Join(pairs, "&")
}

func rewriteJSON(m map[string]any, tokensByValue map[string]token.Detected) {
	for k, v := range m {
		switch val := v.(type) {
		case string:
			m[k] = placeholderFor(k, val, tokensByValue)
		case map[string]any:
			rewriteJSON(val, tokensByValue)
		}
	}
}

func placeholderFor(name, value string, tokensByValue map[string]token.Detected) string {
	switch {
	case credentialFieldRe.MatchString(name) && isPasswordLike(name):
		return "<PASSWORD>"
	case credentialFieldRe.MatchString(name) && isEmailLike(name):
		return "<EMAIL>"
	case credentialFieldRe.MatchString(name):
		return "<USERNAME>"
	}
	if d, ok := tokensByValue[value]; ok {
		return "<@" + d.Name + ">"
	}
	return value
}

func isPasswordLike(name string) bool {
	return strings.Contains(strings.ToLower(name), "pass") || strings.Contains(strings.ToLower(name), "pwd")
}

func isEmailLike(name string) bool {
	return strings.Contains(strings.ToLower(name), "email")
}

// wrapWithErrorHandling applies the standard catch-branch table.
func wrapWithErrorHandling(body []IR) Try {
	return Try{
		Try: body,
		Catches: []Catch{
			{Cond: `STATUSCODE == 429`, IR: []IR{retryBackoff(3, 1000, true)}},
			{Cond: `STATUSCODE == 401 || STATUSCODE == 403`, IR: []IR{retryBackoff(2, 500, false)}},
			{Cond: `RESPONSE.Contains("captcha")`, IR: []IR{Log{Msg: "captcha encountered, manual solve required"}, Mark{Status: MarkFailure, Msg: "captcha"}}},
			{Cond: `STATUSCODE >= 500`, IR: []IR{retryBackoff(3, 2000, true)}},
		},
		Finally: []IR{Mark{Status: MarkError, Msg: "unhandled"}},
	}
}

func retryBackoff(attempts, baseMs int, exponential bool) IR {
	delays := make([]IR, 0, attempts)
	for i := 0; i < attempts; i++ {
		ms := baseMs
		if exponential {
			ms = baseMs << i
		}
		delays = append(delays, Delay{Ms: ms})
	}
	return While{Cond: "RETRY_COUNT < " + strconv.Itoa(attempts), Body: delays}
}
