package dispatcher

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestListSourceAssignsKindAndSkipsBlankLines(t *testing.T) {
	src := NewListSource(strings.NewReader("10.1/a\n\n10.1/b\n"), "doi")

	seed, ok := src.Next()
	require.True(t, ok)
	require.Equal(t, "10.1/a", seed.DOI)
	require.NotEmpty(t, seed.ID)

	seed, ok = src.Next()
	require.True(t, ok)
	require.Equal(t, "10.1/b", seed.DOI)

	_, ok = src.Next()
	require.False(t, ok)
}

func TestCORD19SourceParsesRowsAndAliasesHeaders(t *testing.T) {
	csv := "cord_uid,doi,pubmed_id,pmcid,sha,title,license,abstract,publish_time,Microsoft Academic Paper ID,WHO #Covidence,arxiv_id,url\n" +
		"uid1,10.1/x,123,PMC9,shaval,my title,cc-by,my abstract,2020-03-15,mag1,who1,arx1,http://x\n"

	src, err := NewCORD19Source(strings.NewReader(csv))
	require.NoError(t, err)

	seed, ok := src.Next()
	require.True(t, ok)
	require.Equal(t, "uid1", seed.ID)
	require.Equal(t, "10.1/x", seed.DOI)
	require.Equal(t, "123", seed.PMID)
	require.Equal(t, "PMC9", seed.PMCID)
	require.Equal(t, "mag1", seed.Extra["mag_id"])
	require.Equal(t, "who1", seed.Extra["who_covidence_id"])
	require.Equal(t, "2020-03-15", seed.Extra["publish_time"])

	_, ok = src.Next()
	require.False(t, ok)
}

func TestCORD19SourceSkipsRowsMissingCordUID(t *testing.T) {
	csv := "cord_uid,doi\n,10.1/missing-uid\nuid2,10.1/present\n"
	src, err := NewCORD19Source(strings.NewReader(csv))
	require.NoError(t, err)

	seed, ok := src.Next()
	require.True(t, ok)
	require.Equal(t, "uid2", seed.ID)

	_, ok = src.Next()
	require.False(t, ok)
}
