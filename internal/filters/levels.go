package filters

import (
	"fmt"
	"sort"
	"strings"

	"logfilters/pkg/errors"
)

var levelNames = map[string]string{
	"A": "Assert",
	"D": "Debug",
	"E": "Error",
	"F": "Fatal",
	"I": "Info",
	"V": "Verbose",
	"W": "Warning",
}

// LevelCodes returns the accepted level codes in canonical order.
func LevelCodes() []string {
	codes := make([]string, 0, len(levelNames))
	for code := range levelNames {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// ParseLevel accepts a level code ("W") or its readable name ("warning")
// and returns the code.
func ParseLevel(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	if _, ok := levelNames[strings.ToUpper(s)]; ok && len(s) == 1 {
		return strings.ToUpper(s), true
	}
	for code, name := range levelNames {
		if strings.EqualFold(name, s) {
			return code, true
		}
	}
	return "", false
}

// LevelName maps one stored element to its readable name. Unknown elements
// map to the empty string.
func LevelName(element string) string {
	if name, ok := levelNames[element]; ok {
		return name
	}
	for _, name := range levelNames {
		if strings.EqualFold(name, element) {
			return name
		}
	}
	return ""
}

func SplitLevels(content string) []string {
	if content == "" {
		return nil
	}
	return strings.Split(content, ",")
}

// CanonicalLevels normalises, deduplicates and sorts levels and joins them
// with ",". Blank entries are ignored.
func CanonicalLevels(levels []string) (string, error) {
	seen := make(map[string]struct{}, len(levels))
	codes := make([]string, 0, len(levels))
	for _, l := range levels {
		if strings.TrimSpace(l) == "" {
			continue
		}
		code, ok := ParseLevel(l)
		if !ok {
			return "", errors.ErrInvalidInput.
				WithDetail("message", fmt.Sprintf("unknown log level %q", l)).
				WithDetail("valid", LevelCodes())
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return strings.Join(codes, ","), nil
}
