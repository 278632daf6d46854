// Package classify tags each HarEntry with ResourceType labels and derives
// EndpointCharacteristics.
package classify

import (
	"regexp"
	"strings"

	"github.com/hartools/har-lolicode/internal/harmodel"
)

// ResourceType is one tag drawn from the fixed classification set.
type ResourceType string

const (
	Authentication    ResourceType = "authentication"
	ApiEndpoint       ResourceType = "api_endpoint"
	FormSubmission    ResourceType = "form_submission"
	HtmlDocument      ResourceType = "html_document"
	StaticAsset       ResourceType = "static_asset"
	Tracking          ResourceType = "tracking"
	ThirdParty        ResourceType = "third_party"
	Websocket         ResourceType = "websocket"
	FileUpload        ResourceType = "file_upload"
	Graphql           ResourceType = "graphql"
	SessionManagement ResourceType = "session_management"
	Unknown           ResourceType = "unknown"
)

// ParameterType is a detected shape of credential/session material carried
// by request parameters.
type ParameterType string

const (
	ParamJWT        ParameterType = "jwt"
	ParamAPIKey     ParameterType = "api_key"
	ParamOAuthState ParameterType = "oauth_state"
)

// EndpointCharacteristics is the struct of derived booleans/sets used
// by the scoring engine.
type EndpointCharacteristics struct {
	HasAuthentication bool
	HasStateChange    bool
	HasDataSubmission bool
	HasSensitiveData  bool
	IsIdempotent      bool
	ParameterTypes    map[ParameterType]struct{}
}

// Classified is a HarEntry plus the classifier's output.
type Classified struct {
	Entry           harmodel.HarEntry
	ResourceTypes   map[ResourceType]struct{}
	Characteristics EndpointCharacteristics
}

var (
	authURLPattern      = regexp.MustCompile(`(?i)(login|signin|sign-in|auth|oauth|token|session|logout|register|signup)`)
	apiURLPattern       = regexp.MustCompile(`(?i)(/api/|/v[0-9]+/|\.json$)`)
	trackingURLPattern  = regexp.MustCompile(`(?i)(analytics|tracking|telemetry|metrics|beacon|pixel|gtm|doubleclick|segment\.io)`)
	graphqlURLPattern   = regexp.MustCompile(`(?i)(/graphql|/gql)`)
	staticExtPattern    = regexp.MustCompile(`(?i)\.(css|js|png|jpe?g|gif|svg|ico|woff2?|ttf|eot|map)(\?|$)`)
	sensitiveFieldRegex = regexp.MustCompile(`(?i)(password|pass|pwd|ssn|credit|secret|token|authorization)`)
	jwtShape            = regexp.MustCompile(`^[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+$`)
	apiKeyFieldRegex    = regexp.MustCompile(`(?i)(api[_-]?key|apikey|x-api-key)`)
	oauthStateRegex     = regexp.MustCompile(`(?i)^state$`)
)

// Classify tags a single entry. An entry may carry multiple ResourceType
// tags; if no rule matches at all, Unknown is added.
func Classify(entry harmodel.HarEntry) Classified {
	types := make(map[ResourceType]struct{})
	url := entry.Request.URL
	method := strings.ToUpper(entry.Request.Method)
	contentType, _ := harmodel.HeaderValue(entry.Response.Headers, "Content-Type")
	reqContentType, _ := harmodel.HeaderValue(entry.Request.Headers, "Content-Type")

	if authURLPattern.MatchString(url) {
		types[Authentication] = struct{}{}
	}
	if apiURLPattern.MatchString(url) || strings.Contains(contentType, "json") {
		types[ApiEndpoint] = struct{}{}
	}
	if graphqlURLPattern.MatchString(url) {
		types[Graphql] = struct{}{}
	}
	if method == "POST" && (strings.Contains(reqContentType, "form-urlencoded") || strings.Contains(reqContentType, "multipart") || entry.Request.PostData != nil) {
		types[FormSubmission] = struct{}{}
	}
	if strings.Contains(reqContentType, "multipart/form-data") {
		types[FileUpload] = struct{}{}
	}
	if strings.Contains(contentType, "text/html") {
		types[HtmlDocument] = struct{}{}
	}
	if staticExtPattern.MatchString(url) {
		types[StaticAsset] = struct{}{}
	}
	if trackingURLPattern.MatchString(url) {
		types[Tracking] = struct{}{}
	}
	if hasSessionCookie(entry) {
		types[SessionManagement] = struct{}{}
	}
	if strings.HasPrefix(strings.ToLower(url), "ws://") || strings.HasPrefix(strings.ToLower(url), "wss://") {
		types[Websocket] = struct{}{}
	}
	if len(types) == 0 {
		types[Unknown] = struct{}{}
	}

	return Classified{
		Entry:           entry,
		ResourceTypes:   types,
		Characteristics: characterize(entry, types),
	}
}

func hasSessionCookie(entry harmodel.HarEntry) bool {
	for _, c := range entry.Response.Cookies {
		lower := strings.ToLower(c.Name)
		if strings.Contains(lower, "session") || strings.Contains(lower, "auth") || strings.Contains(lower, "token") {
			return true
		}
	}
	return false
}

func characterize(entry harmodel.HarEntry, types map[ResourceType]struct{}) EndpointCharacteristics {
	_, hasAuth := types[Authentication]
	_, hasSession := types[SessionManagement]
	method := strings.ToUpper(entry.Request.Method)

	idempotent := method == "GET" || method == "HEAD" || method == "OPTIONS"

	hasDataSubmission := method == "POST" || method == "PUT" || method == "PATCH" || method == "DELETE"
	hasStateChange := hasDataSubmission

	paramTypes := make(map[ParameterType]struct{})
	sensitive := false

	allParams := append([]harmodel.NVPair{}, entry.Request.Query...)
	if entry.Request.PostData != nil {
		allParams = append(allParams, entry.Request.PostData.Params...)
	}
	for _, p := range allParams {
		if sensitiveFieldRegex.MatchString(p.Name) {
			sensitive = true
		}
		if jwtShape.MatchString(p.Value) {
			paramTypes[ParamJWT] = struct{}{}
		}
		if apiKeyFieldRegex.MatchString(p.Name) {
			paramTypes[ParamAPIKey] = struct{}{}
		}
		if oauthStateRegex.MatchString(p.Name) {
			paramTypes[ParamOAuthState] = struct{}{}
		}
	}
	for _, h := range entry.Request.Headers {
		if strings.EqualFold(h.Name, "Authorization") {
			sensitive = true
			if jwtShape.MatchString(strings.TrimPrefix(h.Value, "Bearer ")) {
				paramTypes[ParamJWT] = struct{}{}
			}
		}
		if apiKeyFieldRegex.MatchString(h.Name) {
			paramTypes[ParamAPIKey] = struct{}{}
		}
	}

	return EndpointCharacteristics{
		HasAuthentication: hasAuth || hasSession,
		HasStateChange:    hasStateChange,
		HasDataSubmission: hasDataSubmission,
		HasSensitiveData:  sensitive || hasAuth,
		IsIdempotent:      idempotent,
		ParameterTypes:    paramTypes,
	}
}
