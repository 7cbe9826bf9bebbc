package common

import (
	"regexp"
	"strconv"
)

var trailingNumber = regexp.MustCompile(`(\d+)\D*$`)

// VersionNumber extracts the last run of digits embedded in a version label,
// so "v12" yields 12 and "prompt-3b" yields 3.
// The second return value is false when the label carries no digits.
func VersionNumber(version string) (int, bool) {
	m := trailingNumber.FindStringSubmatch(version)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}
