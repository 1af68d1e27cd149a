package scanner

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrInvalidPattern is returned when the address filter does not compile
var ErrInvalidPattern = errors.New("invalid address filter pattern")

// CompileFilter compiles pattern with full-match semantics.
// An empty pattern returns a nil matcher.
func CompileFilter(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPattern, err)
	}
	return re, nil
}

// FilterCandidates keeps the candidates fully matching pattern.
// With an empty pattern the input is returned unfiltered.
func FilterCandidates(candidates []string, pattern string) ([]string, error) {
	re, err := CompileFilter(pattern)
	if err != nil {
		return nil, err
	}
	if re == nil {
		return candidates, nil
	}

	filtered := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		if re.MatchString(candidate) {
			filtered = append(filtered, candidate)
		}
	}
	return filtered, nil
}
