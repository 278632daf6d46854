package correlate

import (
	"regexp"
	"strconv"
)

// Segment shape patterns used to normalize dynamic path components (ids,
// UUIDs, dates, slugs, hashes) so that two URLs differing only in a
// resource identifier still compare as structurally identical paths.
var (
	uuidSegment = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
	dateSegment = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	slugSegment = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)+$`)
	hashSegment = regexp.MustCompile(`^[a-f0-9]{16,64}$`)
)

// normalizeSegment collapses a path segment to a shape placeholder when it
// looks like a dynamic identifier, leaving static segments (login, api,
// settings, ...) untouched.
func normalizeSegment(s string) string {
	switch {
	case s == "":
		return s
	case isNumericID(s):
		return "{id}"
	case uuidSegment.MatchString(s):
		return "{uuid}"
	case dateSegment.MatchString(s):
		return "{date}"
	case hashSegment.MatchString(s):
		return "{hash}"
	case slugSegment.MatchString(s):
		return "{slug}"
	default:
		return s
	}
}

func isNumericID(s string) bool {
	_, err := strconv.Atoi(s)
	return err == nil
}

// normalizePath maps every segment through normalizeSegment, so /users/42
// and /users/91 both become /users/{id} for comparison purposes.
func normalizePath(segments []string) []string {
	out := make([]string, len(segments))
	for i, s := range segments {
		out[i] = normalizeSegment(s)
	}
	return out
}
