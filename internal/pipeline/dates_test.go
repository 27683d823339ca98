package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"rxsync/internal/table"
)

func TestDateRewriter(t *testing.T) {
	r := DateRewriter{
		Columns:      []string{"PATDOB", "MISSING"},
		InputLayout:  "1/2/2006 3:04:05 PM",
		OutputLayout: "01022006",
	}
	in := table.FromStrings([]string{"RXNO", "PATDOB"}, [][]string{
		{"1", "3/7/1954 12:00:00 AM"},
		{"2", " 11/23/1980 12:00:00 AM "},
		{"3", "not a date"},
		{"4", ""},
	})

	out, n := r.Rewrite(in)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"03071954", "11231980", "not a date", ""}, texts(out, "PATDOB"))
	assert.Equal(t, "3/7/1954 12:00:00 AM", in.Get(0, "PATDOB").Text())
}

func TestDateRewriterWithoutLayouts(t *testing.T) {
	in := table.FromStrings([]string{"PATDOB"}, [][]string{{"3/7/1954 12:00:00 AM"}})
	out, n := DateRewriter{Columns: []string{"PATDOB"}}.Rewrite(in)
	assert.Zero(t, n)
	assert.True(t, table.Equal(in, out))
}
