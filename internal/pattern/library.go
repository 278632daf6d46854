package pattern

import "regexp"

// DefaultLibrary returns the three core authentication-flow patterns
// (oauth2_auth_code, form_auth_csrf, jwt_api_auth) plus the mfa_challenge
// annotation-only pattern.

func mustRe(p string) *regexp.Regexp { return regexp.MustCompile(p) }

func DefaultLibrary() []AuthPattern {
	return []AuthPattern{oauth2AuthCode(), formAuthCSRF(), jwtAPIAuth(), mfaChallenge()}
}

func oauth2AuthCode() AuthPattern {
	return AuthPattern{
		ID:             "oauth2_auth_code",
		BaseConfidence: 0.9,
		Steps: []Step{
			{
				Name:     "authorize",
				URLRegex: mustRe(`(?i)/oauth/authorize`),
				Methods:  []string{"GET"},
				Statuses: []int{200, 302, 301},
			},
			{
				Name:     "token_exchange",
				URLRegex: mustRe(`(?i)/oauth/token`),
				Methods:  []string{"POST"},
				Statuses: []int{200},
			},
		},
		Extractors: []Extractor{
			{Field: "state", Step: 0, Source: "url", Regex: mustRe(`(?i)[?&]state=([^&]+)`)},
			{Field: "access_token", Step: 1, Source: "body", Regex: mustRe(`"access_token"\s*:\s*"([^"]+)"`)},
		},
		TokenHintPatterns: []*regexp.Regexp{mustRe(`(?i)access_token|refresh_token|code|state`)},
	}
}

func formAuthCSRF() AuthPattern {
	return AuthPattern{
		ID:             "form_auth_csrf",
		BaseConfidence: 0.85,
		Steps: []Step{
			{
				Name:     "login_page",
				URLRegex: mustRe(`(?i)(login|signin|sign-in)`),
				Methods:  []string{"GET"},
				Statuses: []int{200},
			},
			{
				Name:     "login_submit",
				URLRegex: mustRe(`(?i)(login|signin|sign-in)`),
				Methods:  []string{"POST"},
			},
		},
		Extractors: []Extractor{
			{Field: "csrf_token", Step: 0, Source: "body", Regex: mustRe(`(?i)name=["']?(?:csrf[_-]?token|_token|authenticity_token)["']?\s+value=["']([^"']+)["']`)},
		},
		TokenHintPatterns: []*regexp.Regexp{mustRe(`(?i)csrf|_token|authenticity_token`)},
	}
}

func jwtAPIAuth() AuthPattern {
	return AuthPattern{
		ID:             "jwt_api_auth",
		BaseConfidence: 0.8,
		Steps: []Step{
			{
				Name:     "credentials_post",
				URLRegex: mustRe(`(?i)(login|auth|token|session)`),
				Methods:  []string{"POST"},
				Statuses: []int{200, 201},
			},
			{
				Name:        "authenticated_call",
				HeaderRegex: map[string]*regexp.Regexp{"Authorization": mustRe(`(?i)^Bearer\s+`)},
			},
		},
		Extractors: []Extractor{
			{Field: "access_token", Step: 0, Source: "body", Regex: mustRe(`"(?:access_token|id_token|jwt)"\s*:\s*"([^"]+)"`)},
		},
		TokenHintPatterns: []*regexp.Regexp{mustRe(`(?i)access_token|id_token|jwt|bearer`)},
	}
}

// mfaChallenge is annotation-only: it is matched and
// reported like any other pattern, but the block builder never emits a
// recovery/retry branch for it, because the source system it was distilled
// from has no MFA-solving implementation either.
func mfaChallenge() AuthPattern {
	return AuthPattern{
		ID:             "mfa_challenge",
		BaseConfidence: 0.6,
		Steps: []Step{
			{
				Name:      "mfa_prompt",
				BodyRegex: mustRe(`(?i)(mfa|otp|2fa|verification.?code|totp)`),
			},
		},
	}
}
