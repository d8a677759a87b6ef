package regulatory

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRetriever() *Retriever {
	return NewRetriever([]Snippet{
		{Jurisdiction: "oh", Topic: "TDDD", Text: "tddd license", Source: "ORC"},
		{Jurisdiction: "OH", Topic: "expiry", Text: "annual renewal", Source: "OBP"},
		{Jurisdiction: "NJ", Topic: "expiry", Text: "biennial renewal", Source: "NJDCA"},
		{Jurisdiction: "FEDERAL", Topic: "controlled_substances", Text: "dea registration", Source: "CFR"},
	})
}

func TestSearch(t *testing.T) {
	r := testRetriever()

	t.Run("empty topic matches every topic of the jurisdiction", func(t *testing.T) {
		got := slices.Collect(r.Search("OH", ""))
		require.Len(t, got, 2)
		assert.Equal(t, "tddd", got[0].Topic)
		assert.Equal(t, "expiry", got[1].Topic)
	})

	t.Run("topic narrows results", func(t *testing.T) {
		got := slices.Collect(r.Search("oh", "Expiry"))
		require.Len(t, got, 1)
		assert.Equal(t, "annual renewal", got[0].Text)
	})

	t.Run("unknown jurisdiction yields nothing", func(t *testing.T) {
		assert.Empty(t, slices.Collect(r.Search("ZZ", "")))
	})

	t.Run("sequence is restartable", func(t *testing.T) {
		seq := r.Search("OH", "")
		first := slices.Collect(seq)
		second := slices.Collect(seq)
		assert.Equal(t, first, second)
	})

	t.Run("early break stops iteration", func(t *testing.T) {
		count := 0
		for range r.Search("OH", "") {
			count++
			break
		}
		assert.Equal(t, 1, count)
	})
}

func TestJurisdictions(t *testing.T) {
	assert.Equal(t, []string{"FEDERAL", "NJ", "OH"}, testRetriever().Jurisdictions())
}

func TestLoadDefault(t *testing.T) {
	r, err := LoadDefault()
	require.NoError(t, err)

	assert.NotEmpty(t, slices.Collect(r.Search(JurisdictionFederal, "controlled_substances")))
	assert.NotEmpty(t, slices.Collect(r.Search("OH", "tddd")))
	for s := range r.Search("NJ", "") {
		assert.NotEmpty(t, s.Source)
		assert.NotEmpty(t, s.Text)
	}
}

func TestParseRejectsIncompleteSnippets(t *testing.T) {
	_, err := Parse([]byte("snippets:\n  - jurisdiction: OH\n    topic: expiry\n"))
	require.Error(t, err)

	_, err = Parse([]byte("snippets: [unterminated"))
	require.Error(t, err)
}
