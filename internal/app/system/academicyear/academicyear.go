// internal/app/system/academicyear/academicyear.go
package academicyear

import (
	"fmt"
	"regexp"
	"time"
)

// Academic years are written "2026-27": the starting calendar year followed
// by the last two digits of the next one. The value is always threaded
// explicitly as a parameter; Default is the one named fallback for callers
// that have nothing better (e.g. the daily promotion job).

var pattern = regexp.MustCompile(`^\d{4}-\d{2}$`)

// Default derives the academic year containing t. The academic year rolls
// over in July, so January–June of 2027 still belongs to "2026-27".
func Default(t time.Time) string {
	year := t.Year()
	if t.Month() < time.July {
		year--
	}
	return fmt.Sprintf("%d-%02d", year, (year+1)%100)
}

// Valid reports whether s has the "YYYY-YY" shape and the suffix actually
// follows the starting year.
func Valid(s string) bool {
	if !pattern.MatchString(s) {
		return false
	}
	var start, suffix int
	fmt.Sscanf(s, "%4d-%2d", &start, &suffix)
	return (start+1)%100 == suffix
}
