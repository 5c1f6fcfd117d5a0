package protocol

import "strings"

// uriTemplateMatches reports whether actual matches template using the
// grammar used throughout this module for resource URI templates:
//   - a literal segment must match exactly;
//   - `{name}` matches exactly one path segment;
//   - `{name*}` matches one or more trailing segments (must be last).
//
// Matching is a single left-to-right pass over `/`-delimited segments;
// no backtracking is attempted, so a greedy `{name*}` segment must be
// the template's final component.
func uriTemplateMatches(actual, template string) bool {
	if !strings.Contains(template, "{") {
		return actual == template
	}

	aSegs := strings.Split(actual, "/")
	tSegs := strings.Split(template, "/")

	for i, tSeg := range tSegs {
		if isGreedyParam(tSeg) {
			return i < len(aSegs)
		}
		if i >= len(aSegs) {
			return false
		}
		if isParam(tSeg) {
			continue
		}
		if tSeg != aSegs[i] {
			return false
		}
	}
	return len(aSegs) == len(tSegs)
}

func isParam(seg string) bool {
	return strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}")
}

func isGreedyParam(seg string) bool {
	return isParam(seg) && strings.HasSuffix(seg, "*}")
}
