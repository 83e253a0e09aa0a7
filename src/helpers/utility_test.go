package helpers

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDataSetID(t *testing.T) {
	id := NewDataSetID()
	require.True(t, IsDataSetID(id))
	require.NotEqual(t, id, NewDataSetID())
	require.False(t, IsDataSetID("bench"))
	require.False(t, IsDataSetID(""))
}

func TestUnquoteLiteral(t *testing.T) {
	tests := []struct {
		tok    string
		want   string
		quoted bool
	}{
		{`"OCT,GES"`, "OCT,GES", true},
		{`'abc'`, "abc", true},
		{` "padded" `, "padded", true},
		{`""`, "", true},
		{`42`, "42", false},
		{`"mixed'`, `"mixed'`, false},
		{`"`, `"`, false},
		{`"say \"hi\""`, `say "hi"`, true},
		{`"a\\b"`, `a\b`, true},
		{`"a\*"`, `a\*`, true},
		{`"a\?"`, `a\?`, true},
		{`a\"b`, `a\"b`, false},
	}
	for _, tt := range tests {
		t.Run(tt.tok, func(t *testing.T) {
			got, quoted := UnquoteLiteral(tt.tok)
			require.Equal(t, tt.want, got)
			require.Equal(t, tt.quoted, quoted)
		})
	}
}
