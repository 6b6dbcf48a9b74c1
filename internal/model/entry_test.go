package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShardedPath(t *testing.T) {
	cases := []struct {
		id   string
		want string
	}{
		{"abcdefgh", "ab/cd/ef/gh/abcdefgh/"},
		{"ab", "ab/ab/"},
		{"", "/"},
		{"abcdefghij", "ab/cd/ef/gh/abcdefghij/"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ShardedPath(c.id), "id=%q", c.id)
	}
}

func TestCleanDOI(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"  10.1/ABC  ", "10.1/abc"},
		{"https://doi.org/10.1/ABC", "10.1/abc"},
		{"http://dx.doi.org/10.1/XYZ", "10.1/xyz"},
		{"10.1/already-lower", "10.1/already-lower"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, CleanDOI(c.in), "in=%q", c.in)
	}
}

func TestStrongIdentifiersOrderAndFiltering(t *testing.T) {
	e := &Entry{ID: "id1", DOI: "10.1/x", PMID: "999", PMCID: "", CordUID: ""}
	require.Equal(t, []string{"10.1/x", "999", "id1"}, e.StrongIdentifiers())

	empty := &Entry{}
	assert.Empty(t, empty.StrongIdentifiers())
}

func TestStrongIdentifiersIncludesArxivPIIAndCordSHA(t *testing.T) {
	e := &Entry{
		ID:      "id2",
		ArxivID: "arx1",
		PII:     "S0001",
		CordUID: "uid1",
		CordSHA: "sha1",
	}
	require.Equal(t, []string{"arx1", "S0001", "uid1", "sha1", "id2"}, e.StrongIdentifiers())
}

func TestIsFullyStructuredRespectsRequestedFeatures(t *testing.T) {
	e := &Entry{HasValidOAURL: true, HasValidPDF: true}
	assert.True(t, e.IsFullyStructured(false, false, false))
	assert.False(t, e.IsFullyStructured(true, false, false))

	e.HasValidTEI = true
	assert.True(t, e.IsFullyStructured(true, false, false))
	assert.False(t, e.IsFullyStructured(true, true, false))

	e.HasValidRefAnnot = true
	e.HasValidThumbnail = true
	assert.True(t, e.IsFullyStructured(true, true, true))
}

func TestIsFullyStructuredRequiresOAAndPDF(t *testing.T) {
	e := &Entry{}
	assert.False(t, e.IsFullyStructured(false, false, false))
	e.HasValidOAURL = true
	assert.False(t, e.IsFullyStructured(false, false, false))
}

// TestStateFlagsMonotonic documents the invariant the workflow relies on:
// once a flag is true processing steps never clear it, only a fresh Entry
// (all flags false) restarts from the beginning.
func TestStateFlagsMonotonic(t *testing.T) {
	e := InitStateFlags(&Entry{ID: "x"})
	assert.False(t, e.HasValidOAURL)
	assert.False(t, e.HasValidPDF)
	assert.False(t, e.HasValidTEI)
	assert.False(t, e.HasValidRefAnnot)
	assert.False(t, e.HasValidThumbnail)

	e.HasValidOAURL = true
	e.HasValidPDF = true
	again := InitStateFlags(e)
	assert.True(t, again.HasValidOAURL)
	assert.True(t, again.HasValidPDF)
}
