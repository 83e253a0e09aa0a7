package helpers

import (
	"strings"

	"github.com/google/uuid"
)

// NewDataSetID returns a random identifier for an open data set.
func NewDataSetID() string {
	return uuid.NewString()
}

// IsDataSetID reports whether id has the form NewDataSetID hands out.
func IsDataSetID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// UnquoteLiteral removes one pair of matching single or double quotes from
// a WHERE literal and reports whether there were any. Inside quotes a
// backslash escapes the next character, except the wildcards '*' and '?'
// which keep their backslash for LIKE patterns.
func UnquoteLiteral(tok string) (string, bool) {
	s := strings.TrimSpace(tok)
	if len(s) < 2 || (s[0] != '"' && s[0] != '\'') || s[len(s)-1] != s[0] {
		return s, false
	}
	s = s[1 : len(s)-1]
	if !strings.Contains(s, "\\") {
		return s, true
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) && s[i+1] != '*' && s[i+1] != '?' {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String(), true
}
