package specialty

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// parseRange splits a "lower-upper" reference range such as "70-100".
func parseRange(s string) (lo, hi float64, err error) {
	parts := strings.SplitN(strings.TrimSpace(s), "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed reference range %q", s)
	}
	lo, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed reference range %q", s)
	}
	hi, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed reference range %q", s)
	}
	if hi < lo {
		return 0, 0, fmt.Errorf("malformed reference range %q", s)
	}
	return lo, hi, nil
}

// interpretValue classifies a result against its reference range.
func interpretValue(v, lo, hi float64) string {
	switch {
	case v < lo:
		return "Low"
	case v > hi:
		return "High"
	default:
		return "Normal"
	}
}

// clampScore bounds a score to [0, 100].
func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// coverageScore returns the percentage of required items covered,
// rounded to the nearest integer. An empty requirement scores 100.
func coverageScore(covered, required int) int {
	if required == 0 {
		return 100
	}
	return clampScore(int(math.Round(float64(covered) / float64(required) * 100)))
}

// containsFold reports whether text contains sub, case-insensitively.
func containsFold(text, sub string) bool {
	return strings.Contains(strings.ToLower(text), strings.ToLower(sub))
}

// anyContainsFold reports whether any item contains sub, case-insensitively.
func anyContainsFold(items []string, sub string) bool {
	for _, it := range items {
		if containsFold(it, sub) {
			return true
		}
	}
	return false
}

// matchChecklist partitions required items into those mentioned by at
// least one provided item and those missed.
func matchChecklist(provided, required []string) (covered, missed []string) {
	for _, want := range required {
		found := false
		for _, got := range provided {
			if containsFold(got, want) || containsFold(want, got) {
				found = true
				break
			}
		}
		if found {
			covered = append(covered, want)
		} else {
			missed = append(missed, want)
		}
	}
	return covered, missed
}

// matchText partitions required items into those mentioned in a free-text
// body and those missed.
func matchText(text string, required []string) (covered, missed []string) {
	for _, want := range required {
		if containsFold(text, want) {
			covered = append(covered, want)
		} else {
			missed = append(missed, want)
		}
	}
	return covered, missed
}
