package reconcile

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/sells-group/reconcile-cli/internal/resolve"
)

var rangePattern = regexp.MustCompile(`^(\d+)\s*[-–]\s*(\d+)$`)

// parseRange reads "201-500" style band claims (commas tolerated, "10000+"
// means open-ended).
func parseRange(v any) (lo, hi int, ok bool) {
	s, isStr := v.(string)
	if !isStr {
		return 0, 0, false
	}
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")

	if body, found := strings.CutSuffix(s, "+"); found {
		n, err := strconv.Atoi(strings.TrimSpace(body))
		if err != nil {
			return 0, 0, false
		}
		return n, math.MaxInt, true
	}

	m := rangePattern.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, false
	}
	lo, _ = strconv.Atoi(m[1])
	hi, _ = strconv.Atoi(m[2])
	if lo > hi {
		return 0, 0, false
	}
	return lo, hi, true
}

func exactNumber(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case string:
		i, err := strconv.Atoi(strings.ReplaceAll(strings.TrimSpace(n), ",", ""))
		return i, err == nil
	default:
		return 0, false
	}
}

// refineNumericRanges collapses band claims onto an exact claim they contain:
// 500 and "201-500" are compatible, and the more precise value wins. A range
// that contradicts the exact value is left alone to contest resolution.
func refineNumericRanges(candidates []resolve.CandidateValue) ([]resolve.CandidateValue, bool) {
	type exact struct {
		idx int
		n   int
	}
	var exacts []exact
	for i, c := range candidates {
		if n, ok := exactNumber(c.Value); ok {
			exacts = append(exacts, exact{idx: i, n: n})
		}
	}
	if len(exacts) == 0 {
		return candidates, false
	}

	refined := false
	out := make([]resolve.CandidateValue, len(candidates))
	copy(out, candidates)
	for i, c := range out {
		lo, hi, ok := parseRange(c.Value)
		if !ok {
			continue
		}
		for _, e := range exacts {
			if e.n >= lo && e.n <= hi {
				out[i].Value = e.n
				refined = true
				break
			}
		}
	}
	return out, refined
}
