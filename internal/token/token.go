// Package token runs the multi-layer dynamic-value detector:
// seven independent extraction layers feed a single consolidated view of
// every token-shaped value seen across the critical path.
package token

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"github.com/hartools/har-lolicode/internal/harmodel"
)

// Classification is the closed set of dynamic-value kinds spec's glossary
// names.
type Classification string

const (
	CSRFToken          Classification = "CSRF_TOKEN"
	SessionToken       Classification = "SESSION_TOKEN"
	JWTAccess          Classification = "JWT_ACCESS"
	JWTRefresh         Classification = "JWT_REFRESH"
	OAuthState         Classification = "OAUTH_STATE"
	OAuthCodeVerifier  Classification = "OAUTH_CODE_VERIFIER"
	OAuthCodeChallenge Classification = "OAUTH_CODE_CHALLENGE"
	Nonce              Classification = "NONCE"
	Viewstate          Classification = "VIEWSTATE"
	EventValidation    Classification = "EVENT_VALIDATION"
	CaptchaToken       Classification = "CAPTCHA_TOKEN"
	APIKey             Classification = "API_KEY"
	BearerToken        Classification = "BEARER_TOKEN"
	CustomHeaderToken  Classification = "CUSTOM_HEADER_TOKEN"
	FormBuildID        Classification = "FORM_BUILD_ID"
	DrupalFormToken    Classification = "DRUPAL_FORM_TOKEN"
	LaravelToken       Classification = "LARAVEL_TOKEN"
	DjangoCSRF         Classification = "DJANGO_CSRF"
	RailsAuthenticity  Classification = "RAILS_AUTHENTICITY"
)

// Layer names the extraction technique that surfaced a token.
type Layer string

const (
	LayerHTMLForm       Layer = "html_form"
	LayerJSONResponse   Layer = "json_response"
	LayerHeader         Layer = "header"
	LayerCookie         Layer = "cookie"
	LayerScriptVariable Layer = "script_variable"
	LayerMetaTag        Layer = "meta_tag"
	LayerRegex          Layer = "regex"
)

// Detected is one consolidated dynamic value.
type Detected struct {
	Name           string
	Value          string
	Classification Classification
	Layers         []Layer
	SourceEntries  []int
	Confidence     float64
}

var nameToClassification = map[string]Classification{
	"csrf_token": CSRFToken, "csrftoken": CSRFToken, "_token": CSRFToken, "authenticity_token": RailsAuthenticity,
	"x-csrf-token": CSRFToken, "csrfmiddlewaretoken": DjangoCSRF,
	"session_id": SessionToken, "sessionid": SessionToken, "sid": SessionToken, "jsessionid": SessionToken, "phpsessid": SessionToken,
	"access_token": JWTAccess, "id_token": JWTAccess, "refresh_token": JWTRefresh,
	"state": OAuthState, "code_verifier": OAuthCodeVerifier, "code_challenge": OAuthCodeChallenge,
	"nonce": Nonce,
	"__viewstate": Viewstate, "__eventvalidation": EventValidation,
	"g-recaptcha-response": CaptchaToken, "h-captcha-response": CaptchaToken,
	"api_key": APIKey, "apikey": APIKey, "x-api-key": APIKey,
	"form_build_id": FormBuildID, "form_token": DrupalFormToken,
	"_laravel_token": LaravelToken, "xsrf-token": LaravelToken,
	"jwt_like": JWTAccess,
}

var (
	bearerRe       = regexp.MustCompile(`(?i)^Bearer\s+(.+)$`)
	jwtShapeRe     = regexp.MustCompile(`^[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+$`)
	scriptVarRe    = regexp.MustCompile(`(?i)(?:var|let|const)\s+(\w*(?:token|csrf|nonce|session)\w*)\s*=\s*["']([^"']+)["']`)
	metaCSRFNames  = regexp.MustCompile(`(?i)csrf-token|csrf_token`)
	genericFieldRe = regexp.MustCompile(`(?i)(token|csrf|nonce|session|key|state)`)
	authURLRegex   = regexp.MustCompile(`(?i)(login|signin|auth|token|session)`)
)

func classify(name string) Classification {
	lower := strings.ToLower(name)
	if c, ok := nameToClassification[lower]; ok {
		return c
	}
	switch {
	case strings.Contains(lower, "csrf"):
		return CSRFToken
	case strings.Contains(lower, "session") || strings.Contains(lower, "sid"):
		return SessionToken
	case strings.Contains(lower, "refresh"):
		return JWTRefresh
	case strings.Contains(lower, "bearer") || strings.Contains(lower, "auth"):
		return BearerToken
	default:
		return CustomHeaderToken
	}
}

// patternWeight is the base confidence assigned to the regex fallback
// layer, which has no structural context to lean on.
const patternWeight = 0.4

// baseConfidence gives each layer its starting weight.
func baseConfidence(l Layer) float64 {
	switch l {
	case LayerHTMLForm:
		return 0.9
	case LayerJSONResponse:
		return 0.85
	case LayerHeader:
		return 0.75
	case LayerCookie:
		return 0.8
	case LayerScriptVariable:
		return 0.7
	case LayerMetaTag:
		return 0.65
	case LayerRegex:
		return patternWeight
	default:
		return 0.5
	}
}

// specificityRank orders classifications for cross-reference consolidation:
// lower ranks win when the same value surfaces under more than one name.
func specificityRank(c Classification) int {
	switch c {
	case CSRFToken, DjangoCSRF, DrupalFormToken, LaravelToken, RailsAuthenticity, FormBuildID:
		return 0
	case JWTAccess, JWTRefresh:
		return 1
	case SessionToken:
		return 2
	case APIKey:
		return 3
	case BearerToken:
		return 4
	case OAuthState:
		return 5
	case Nonce:
		return 6
	default:
		return 7
	}
}

type hit struct {
	name, value string
	layer       Layer
	entryIdx    int
}

// DetectAll runs all seven layers over entries in parallel and consolidates
// hits that share a value, whatever name each layer saw it under: the
// highest layer base confidence is kept, and the most specific
// classification among the hits wins.
func DetectAll(ctx context.Context, entries []harmodel.HarEntry, originalIndex []int) ([]Detected, error) {
	extractors := []func(harmodel.HarEntry, int) []hit{
		extractHTMLForm, extractJSONResponse, extractHeader, extractCookie,
		extractScriptVariable, extractMetaTag, extractRegexFallback,
	}

	layerHits := make([][]hit, len(extractors))
	g, _ := errgroup.WithContext(ctx)
	for li, extractor := range extractors {
		li, extractor := li, extractor
		g.Go(func() error {
			var out []hit
			for pos, e := range entries {
				out = append(out, extractor(e, originalIndex[pos])...)
			}
			layerHits[li] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Cross-reference consolidation merges by exact value, regardless of
	// the name under which each layer surfaced it.
	type valueGroup struct {
		hits []hit
	}
	groups := make(map[string]*valueGroup)
	var order []string

	for _, hits := range layerHits {
		for _, h := range hits {
			g, ok := groups[h.value]
			if !ok {
				g = &valueGroup{}
				groups[h.value] = g
				order = append(order, h.value)
			}
			g.hits = append(g.hits, h)
		}
	}

	posOf := make(map[int]int, len(originalIndex))
	for pos, idx := range originalIndex {
		posOf[idx] = pos
	}

	out := make([]Detected, 0, len(order))
	for _, value := range order {
		g := groups[value]
		name, classification := mostSpecificClassification(g.hits)

		var layers []Layer
		var sources []int
		distinctLayers := map[Layer]bool{}
		for _, h := range g.hits {
			layers = append(layers, h.layer)
			sources = append(sources, h.entryIdx)
			distinctLayers[h.layer] = true
		}
		sources = dedupeInts(sources)

		d := Detected{
			Name:           name,
			Value:          value,
			Classification: classification,
			Layers:         layers,
			SourceEntries:  sources,
		}
		d.Confidence = confidenceFor(d, posOf, entries, len(g.hits) > 1 && len(distinctLayers) > 1)
		out = append(out, d)
	}
	return out, nil
}

// mostSpecificClassification picks, among every (name, layer) hit that
// shares a value, the classification with the lowest specificityRank —
// the most specific one wins cross-reference consolidation.
func mostSpecificClassification(hits []hit) (string, Classification) {
	bestName := hits[0].name
	bestClass := classify(hits[0].name)
	bestRank := specificityRank(bestClass)
	for _, h := range hits[1:] {
		c := classify(h.name)
		if r := specificityRank(c); r < bestRank {
			bestRank = r
			bestName = h.name
			bestClass = c
		}
	}
	return bestName, bestClass
}

// confidenceFor runs the base -> contextual -> clamp pipeline, then applies
// the cross-reference consolidation boost when the value was corroborated
// by more than one distinct extraction layer.
func confidenceFor(d Detected, posOf map[int]int, entries []harmodel.HarEntry, crossReferenced bool) float64 {
	conf := 0.0
	for _, l := range d.Layers {
		if c := baseConfidence(l); c > conf {
			conf = c
		}
	}

	conf *= contextualMultiplier(d, posOf, entries)
	conf = clampConfidence(conf)

	if crossReferenced {
		conf = clampConfidence(conf * 1.1)
	}
	return conf
}

// contextualMultiplier implements per-token contextual validation: value
// reappearance later in the flow boosts confidence, a failed format check
// for the token's classification penalises it, and an auth-shaped host URL
// boosts it again.
func contextualMultiplier(d Detected, posOf map[int]int, entries []harmodel.HarEntry) float64 {
	firstPos := -1
	for _, srcIdx := range d.SourceEntries {
		if pos, ok := posOf[srcIdx]; ok && (firstPos == -1 || pos < firstPos) {
			firstPos = pos
		}
	}

	mult := 1.0

	for pos := firstPos + 1; pos < len(entries); pos++ {
		if valueAppearsIn(d.Value, entries[pos]) {
			mult *= 1.1
			break
		}
	}

	if formatValidationFails(d.Classification, d.Value) {
		mult *= 0.8
	}

	if firstPos >= 0 && authURLRegex.MatchString(entries[firstPos].Request.URL) {
		mult *= 1.05
	}

	return mult
}

func valueAppearsIn(value string, e harmodel.HarEntry) bool {
	if value == "" {
		return false
	}
	if strings.Contains(e.Request.URL, value) {
		return true
	}
	if e.Request.PostData != nil && strings.Contains(e.Request.PostData.Text, value) {
		return true
	}
	if strings.Contains(e.Response.Content.Text, value) {
		return true
	}
	for _, h := range e.Request.Headers {
		if strings.Contains(h.Value, value) {
			return true
		}
	}
	for _, h := range e.Response.Headers {
		if strings.Contains(h.Value, value) {
			return true
		}
	}
	return false
}

// formatValidationFails checks the structural shape a classification
// implies: JWTs must have the three-part dotted shape, session tokens must
// be at least 16 characters, API keys at least 20.
func formatValidationFails(c Classification, value string) bool {
	switch c {
	case JWTAccess, JWTRefresh:
		return !jwtShapeRe.MatchString(value)
	case SessionToken:
		return len(value) < 16
	case APIKey:
		return len(value) < 20
	default:
		return false
	}
}

func clampConfidence(v float64) float64 {
	switch {
	case v < 0.3:
		return 0.3
	case v > 1.0:
		return 1.0
	default:
		return v
	}
}

func dedupeInts(in []int) []int {
	seen := map[int]bool{}
	var out []int
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// extractHTMLForm pulls hidden-input tokens out of HTML response bodies
// via a goquery pass over hidden form fields.
func extractHTMLForm(e harmodel.HarEntry, idx int) []hit {
	if !looksLikeHTML(e.Response.Content) {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(e.Response.Content.Text))
	if err != nil {
		return nil
	}
	var out []hit
	doc.Find(`input[type="hidden"]`).Each(func(_ int, s *goquery.Selection) {
		name, _ := s.Attr("name")
		value, _ := s.Attr("value")
		if name == "" || value == "" {
			return
		}
		if genericFieldRe.MatchString(name) {
			out = append(out, hit{name: name, value: value, layer: LayerHTMLForm, entryIdx: idx})
		}
	})
	return out
}

// extractJSONResponse walks flattened JSON response bodies for token-shaped
// fields.
func extractJSONResponse(e harmodel.HarEntry, idx int) []hit {
	if !strings.Contains(e.Response.Content.MimeType, "json") {
		return nil
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(e.Response.Content.Text), &parsed); err != nil {
		return nil
	}
	var out []hit
	var walk func(prefix string, m map[string]any)
	walk = func(prefix string, m map[string]any) {
		for k, v := range m {
			switch val := v.(type) {
			case string:
				if genericFieldRe.MatchString(k) && val != "" {
					out = append(out, hit{name: k, value: val, layer: LayerJSONResponse, entryIdx: idx})
				}
			case map[string]any:
				walk(prefix+k+".", val)
			}
		}
	}
	walk("", parsed)
	return out
}

// extractHeader pulls Authorization/custom security headers off both
// request and response.
func extractHeader(e harmodel.HarEntry, idx int) []hit {
	var out []hit
	check := func(headers []harmodel.Header) {
		for _, h := range headers {
			if v, ok := bearerMatch(h); ok {
				out = append(out, hit{name: h.Name, value: v, layer: LayerHeader, entryIdx: idx})
				continue
			}
			if genericFieldRe.MatchString(h.Name) {
				out = append(out, hit{name: h.Name, value: h.Value, layer: LayerHeader, entryIdx: idx})
			}
		}
	}
	check(e.Request.Headers)
	check(e.Response.Headers)
	return out
}

func bearerMatch(h harmodel.Header) (string, bool) {
	if !strings.EqualFold(h.Name, "Authorization") {
		return "", false
	}
	m := bearerRe.FindStringSubmatch(h.Value)
	if len(m) != 2 {
		return "", false
	}
	return m[1], true
}

// extractCookie scans Set-Cookie and Cookie pairs for session identifiers.
func extractCookie(e harmodel.HarEntry, idx int) []hit {
	var out []hit
	for _, c := range append(append([]harmodel.Cookie{}, e.Response.Cookies...), e.Request.Cookies...) {
		if genericFieldRe.MatchString(c.Name) {
			out = append(out, hit{name: c.Name, value: c.Value, layer: LayerCookie, entryIdx: idx})
		}
	}
	return out
}

// extractScriptVariable looks for inline <script> assignments of
// token-shaped identifiers, a layer HTML forms alone miss (SPA bootstrap
// payloads).
func extractScriptVariable(e harmodel.HarEntry, idx int) []hit {
	if !looksLikeHTML(e.Response.Content) {
		return nil
	}
	var out []hit
	for _, m := range scriptVarRe.FindAllStringSubmatch(e.Response.Content.Text, -1) {
		out = append(out, hit{name: m[1], value: m[2], layer: LayerScriptVariable, entryIdx: idx})
	}
	return out
}

// extractMetaTag reads <meta name="csrf-token" content="..."> tags, a
// pattern common to Rails/Django SSR pages.
func extractMetaTag(e harmodel.HarEntry, idx int) []hit {
	if !looksLikeHTML(e.Response.Content) {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(e.Response.Content.Text))
	if err != nil {
		return nil
	}
	var out []hit
	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		name, _ := s.Attr("name")
		content, _ := s.Attr("content")
		if name == "" || content == "" {
			return
		}
		if metaCSRFNames.MatchString(name) {
			out = append(out, hit{name: name, value: content, layer: LayerMetaTag, entryIdx: idx})
		}
	})
	return out
}

// extractRegexFallback is the lowest-confidence layer: bare JWT-shaped
// strings anywhere in the body, with no structural context.
func extractRegexFallback(e harmodel.HarEntry, idx int) []hit {
	var out []hit
	for _, word := range strings.Fields(e.Response.Content.Text) {
		trimmed := strings.Trim(word, `",;`)
		if jwtShapeRe.MatchString(trimmed) && len(trimmed) > 20 {
			out = append(out, hit{name: "jwt_like", value: trimmed, layer: LayerRegex, entryIdx: idx})
		}
	}
	return out
}

func looksLikeHTML(c harmodel.Content) bool {
	return strings.Contains(c.MimeType, "html") || strings.Contains(c.Text, "<html")
}
