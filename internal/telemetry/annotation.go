package telemetry

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Annotation is the typed key/value content of one bracketed annotation line.
type Annotation map[string]Value

var annotationRe = regexp.MustCompile(`\[([^\]:]+):([^\]]+)\]`)

// ParseAnnotation extracts every "[key : value]" pair from s. Values made of
// digits with at most one dot become numbers, "a/b" ratios become their
// quotient, and everything else is kept as a string. It never fails: a ratio
// that does not parse is kept verbatim.
func ParseAnnotation(s string) Annotation {
	out := make(Annotation)
	for _, m := range annotationRe.FindAllStringSubmatch(s, -1) {
		key := strings.TrimSpace(m[1])
		out[key] = classifyValue(strings.TrimSpace(m[2]))
	}
	return out
}

func classifyValue(raw string) Value {
	if isDecimalNumeral(raw) {
		if strings.Contains(raw, ".") {
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				return FloatValue(f)
			}
		} else if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return IntValue(i)
		} else if f, err := strconv.ParseFloat(raw, 64); err == nil {
			// too wide for int64
			return FloatValue(f)
		}
		return StringValue(raw)
	}
	if strings.Contains(raw, "/") {
		if q, ok := parseRatio(raw); ok {
			return FloatValue(q)
		}
	}
	return StringValue(raw)
}

// isDecimalNumeral reports whether s is all ASCII digits once a single dot is removed.
func isDecimalNumeral(s string) bool {
	s = strings.Replace(s, ".", "", 1)
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func parseRatio(raw string) (float64, bool) {
	parts := strings.Split(raw, "/")
	if len(parts) != 2 {
		return 0, false
	}
	num, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, false
	}
	den, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	// A zero denominator keeps the raw string rather than producing ±Inf.
	if err != nil || den == 0 {
		return 0, false
	}
	return num / den, true
}

// String renders the annotation back into bracketed form with keys sorted.
// Floats are written without exponents so the output parses back to the
// same values.
func (a Annotation) String() string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "[%s: %s]", k, a[k].plainString())
	}
	return b.String()
}
