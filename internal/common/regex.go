package common

import (
	"regexp"
	"strings"
)

var plateSeparators = regexp.MustCompile(`[\s\-_.]+`)

// MatchRegex compiles and matches a regex pattern against a string.
// Returns true if the pattern matches, false otherwise.
// Returns an error if the pattern is invalid.
func MatchRegex(pattern, text string) (bool, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return false, err
	}
	return re.MatchString(text), nil
}

// CompactPlate strips separators and upper-cases a vehicle number so
// "wp cab-1234" and "WPCAB1234" compare equal.
func CompactPlate(plate string) string {
	return strings.ToUpper(plateSeparators.ReplaceAllString(strings.TrimSpace(plate), ""))
}
