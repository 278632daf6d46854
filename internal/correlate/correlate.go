// Package correlate computes the pairwise correlation matrix and walks the
// critical path through it. Pair computation is embarrassingly
// parallel and purely functional over immutable entries, so it is fanned
// out with golang.org/x/sync/errgroup.
package correlate

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/hartools/har-lolicode/internal/harmodel"
	"github.com/hartools/har-lolicode/internal/score"
	"golang.org/x/sync/errgroup"
)

// Factors names the five weighted correlation components.
type Factors struct {
	Referer  float64
	Cookie   float64
	Token    float64
	Temporal float64
	URLPath  float64
}

// Cell is one entry of the correlation matrix.
type Cell struct {
	Score   float64
	Factors map[string]float64
}

// Matrix is the square symmetric correlation matrix, zero diagonal.
type Matrix struct {
	N     int
	cells [][]Cell
}

func newMatrix(n int) *Matrix {
	cells := make([][]Cell, n)
	for i := range cells {
		cells[i] = make([]Cell, n)
	}
	return &Matrix{N: n, cells: cells}
}

// At returns the correlation cell between i and j.
func (m *Matrix) At(i, j int) Cell { return m.cells[i][j] }

func (m *Matrix) set(i, j int, c Cell) {
	m.cells[i][j] = c
	m.cells[j][i] = c
}

const (
	weightReferer  = 0.25
	weightCookie   = 0.20
	weightToken    = 0.20
	weightTemporal = 0.20
	weightURLPath  = 0.15
)

var (
	tokenHintWord   = regexp.MustCompile(`(?i)csrf|token|session|auth|state|nonce|jwt`)
	quotedValueExpr = regexp.MustCompile(`["']([a-zA-Z0-9_.\-]{4,80})["']`)
)

// tokenHintWindow is how far back from a quoted value we look for a
// token-ish keyword (covers `name="_token" value="abc123"` where the
// keyword and the value sit in separate attributes).
const tokenHintWindow = 40

// Compute builds the correlation matrix for the given scored entries,
// parallelising pair computation across an errgroup while keeping the
// result deterministic and symmetric with a zero diagonal.
func Compute(ctx context.Context, entries []score.ScoredEntry) (*Matrix, error) {
	n := len(entries)
	m := newMatrix(n)
	if n < 2 {
		return m, nil
	}

	type pair struct{ i, j int }
	pairs := make([]pair, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			pairs = append(pairs, pair{i, j})
		}
	}

	g, _ := errgroup.WithContext(ctx)
	results := make([]Cell, len(pairs))
	for idx, p := range pairs {
		idx, p := idx, p
		g.Go(func() error {
			results[idx] = correlatePair(entries[p.i].Entry, entries[p.j].Entry)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for idx, p := range pairs {
		m.set(p.i, p.j, results[idx])
	}
	return m, nil
}

func correlatePair(a, b harmodel.HarEntry) Cell {
	refFactor := refererFactor(a, b)
	cookieFactor := cookieFactorScore(a, b)
	tokenFactor := tokenFactorScore(a, b)
	temporalFactor := temporalFactorScore(a, b)
	pathFactor := urlPathFactor(a, b)

	total := weightReferer*refFactor + weightCookie*cookieFactor + weightToken*tokenFactor +
		weightTemporal*temporalFactor + weightURLPath*pathFactor

	return Cell{
		Score: total,
		Factors: map[string]float64{
			"referer":  refFactor,
			"cookie":   cookieFactor,
			"token":    tokenFactor,
			"temporal": temporalFactor,
			"url_path": pathFactor,
		},
	}
}

func refererFactor(a, b harmodel.HarEntry) float64 {
	referer, ok := harmodel.HeaderValue(b.Request.Headers, "Referer")
	if !ok || referer == "" {
		return 0
	}
	if referer == a.Request.URL {
		return 1.0
	}
	au, aerr := url.Parse(a.Request.URL)
	bu, berr := url.Parse(referer)
	if aerr == nil && berr == nil && au.Host != "" && au.Host == bu.Host {
		return 0.7 + 0.3*pathSimilarity(au.Path, bu.Path)
	}
	return 0
}

func pathSimilarity(a, b string) float64 {
	as := normalizePath(splitPath(a))
	bs := normalizePath(splitPath(b))
	if len(as) == 0 && len(bs) == 0 {
		return 1
	}
	common := 0
	for i := 0; i < len(as) && i < len(bs); i++ {
		if as[i] == bs[i] {
			common++
		} else {
			break
		}
	}
	maxLen := len(as)
	if len(bs) > maxLen {
		maxLen = len(bs)
	}
	if maxLen == 0 {
		return 1
	}
	return float64(common) / float64(maxLen)
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func cookieFactorScore(a, b harmodel.HarEntry) float64 {
	setByA := harmodel.CookieNames(a.Response.Cookies)
	if len(setByA) == 0 {
		return 0
	}
	sentByB := harmodel.CookieNames(b.Request.Cookies)
	common := 0
	for name := range setByA {
		if _, ok := sentByB[name]; ok {
			common++
		}
	}
	return float64(common) / float64(len(setByA))
}

func tokenFactorScore(a, b harmodel.HarEntry) float64 {
	body := a.Response.Content.Text
	candidates := tokenLikeValues(body)
	if len(candidates) == 0 {
		return 0
	}
	surfaceB := strings.Join([]string{
		b.Request.URL,
		bodyText(b),
		headerBlob(b.Request.Headers),
	}, " ")

	reused := 0
	for _, value := range candidates {
		if strings.Contains(surfaceB, value) {
			reused++
		}
	}
	return float64(reused) / float64(len(candidates))
}

// tokenLikeValues returns every quoted value in body that sits near a
// token-ish keyword (csrf/token/session/...), whether the keyword names
// the same attribute (token=abc) or a sibling one (name="_token"
// value="abc").
func tokenLikeValues(body string) []string {
	var out []string
	for _, loc := range quotedValueExpr.FindAllStringSubmatchIndex(body, -1) {
		start := loc[0] - tokenHintWindow
		if start < 0 {
			start = 0
		}
		window := body[start:loc[0]]
		if tokenHintWord.MatchString(window) {
			out = append(out, body[loc[2]:loc[3]])
		}
	}
	return out
}

func bodyText(e harmodel.HarEntry) string {
	if e.Request.PostData != nil {
		return e.Request.PostData.Text
	}
	return ""
}

func headerBlob(headers []harmodel.Header) string {
	var b strings.Builder
	for _, h := range headers {
		b.WriteString(h.Value)
		b.WriteString(" ")
	}
	return b.String()
}

func temporalFactorScore(a, b harmodel.HarEntry) float64 {
	delta := b.StartedAt.Sub(a.StartedAt).Seconds()
	if delta < 0 {
		delta = -delta
	}
	if delta < 1 {
		return 1.0
	}
	if delta >= 10 {
		return 0.1
	}
	// Linear decay from 1.0 at 1s to 0.1 at 10s.
	return 1.0 - (delta-1.0)*(0.9/9.0)
}

func urlPathFactor(a, b harmodel.HarEntry) float64 {
	au, aerr := url.Parse(a.Request.URL)
	bu, berr := url.Parse(b.Request.URL)
	if aerr != nil || berr != nil {
		return 0
	}
	as := normalizePath(splitPath(au.Path))
	bs := normalizePath(splitPath(bu.Path))
	common := 0
	for i := 0; i < len(as) && i < len(bs); i++ {
		if as[i] == bs[i] {
			common++
		} else {
			break
		}
	}
	maxLen := len(as)
	if len(bs) > maxLen {
		maxLen = len(bs)
	}
	if maxLen == 0 {
		return 0
	}
	return float64(common) / float64(maxLen)
}

// CriticalPathResult is the output of the seeded greedy walk.
type CriticalPathResult struct {
	Path      []int
	Redundant []int
}

const defaultTau = 0.7

var (
	authURLRegex    = regexp.MustCompile(`(?i)(login|signin|auth|token|session)`)
	sessionTextRegex = regexp.MustCompile(`(?i)(session|auth|token)`)
)

// AuthRelevance scores how strongly an entry looks like part of an
// authentication flow, used to seed the critical-path walk.
func AuthRelevance(e harmodel.HarEntry) float64 {
	s := 0.0
	if authURLRegex.MatchString(e.Request.URL) {
		s += 0.4
	}
	if strings.ToUpper(e.Request.Method) == "POST" && authURLRegex.MatchString(e.Request.URL) {
		s += 0.3
	}
	if e.Response.Status == 200 && sessionTextRegex.MatchString(e.Response.Content.Text) {
		s += 0.3
	}
	if s > 1.0 {
		s = 1.0
	}
	return s
}

// WalkCriticalPath implements the deterministic seeded greedy walk.
// entries must be in the same order/indexing as the matrix m was built
// from.
func WalkCriticalPath(entries []score.ScoredEntry, m *Matrix, tau float64) CriticalPathResult {
	n := len(entries)
	if n == 0 {
		return CriticalPathResult{}
	}
	if tau <= 0 {
		tau = defaultTau
	}

	seed := 0
	bestRelevance := 0.0
	for i, e := range entries {
		r := AuthRelevance(e.Entry)
		if r > bestRelevance {
			bestRelevance = r
			seed = i
		}
	}
	if bestRelevance <= 0.5 {
		seed = 0
	}

	visited := make(map[int]bool, n)
	path := []int{seed}
	visited[seed] = true
	maxLen := 20
	if n < maxLen {
		maxLen = n
	}

	current := seed
	for len(path) < maxLen {
		best := -1
		bestScore := tau
		for k := 0; k < n; k++ {
			if visited[k] {
				continue
			}
			c := m.At(current, k)
			if c.Score > tau && (best == -1 || c.Score > bestScore) {
				bestScore = c.Score
				best = k
			}
		}
		if best == -1 {
			break
		}
		path = append(path, best)
		visited[best] = true
		current = best
	}

	redundant := make([]int, 0)
	for k := 0; k < n; k++ {
		if visited[k] {
			continue
		}
		count := 0
		for _, p := range path {
			if m.At(p, k).Score > tau {
				count++
			}
		}
		if count >= 2 {
			redundant = append(redundant, k)
		}
	}

	return CriticalPathResult{Path: path, Redundant: redundant}
}
