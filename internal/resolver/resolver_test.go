package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelectUnpaywallURLPrefersURLForPDF(t *testing.T) {
	r := unpaywallResponse{
		BestOALocation: &oaLocation{URLForPDF: "http://example/best.pdf"},
	}
	url, ok := selectUnpaywallURL(r, "https://www.ncbi.nlm.nih.gov/pmc")
	assert.True(t, ok)
	assert.Equal(t, "http://example/best.pdf", url)
}

func TestSelectUnpaywallURLFallsBackToPMCBaseSuffixing(t *testing.T) {
	r := unpaywallResponse{
		BestOALocation: &oaLocation{URL: "https://www.ncbi.nlm.nih.gov/pmc/articles/PMC1"},
	}
	url, ok := selectUnpaywallURL(r, "https://www.ncbi.nlm.nih.gov/pmc")
	assert.True(t, ok)
	assert.Equal(t, "https://www.ncbi.nlm.nih.gov/pmc/articles/PMC1/pdf/", url)
}

func TestSelectUnpaywallURLScansOALocationsPreferringPMC(t *testing.T) {
	r := unpaywallResponse{
		OALocations: []oaLocation{
			{URLForPDF: "http://publisher/a.pdf"},
			{URL: "https://www.ncbi.nlm.nih.gov/pmc/articles/PMC2"},
		},
	}
	url, ok := selectUnpaywallURL(r, "")
	assert.True(t, ok)
	assert.Equal(t, "https://www.ncbi.nlm.nih.gov/pmc/articles/PMC2/pdf/", url)
}

func TestSelectUnpaywallURLFallsBackToAnyURLForPDF(t *testing.T) {
	r := unpaywallResponse{
		OALocations: []oaLocation{
			{URL: "https://publisher.example/landing"},
			{URLForPDF: "http://publisher/b.pdf"},
		},
	}
	url, ok := selectUnpaywallURL(r, "")
	assert.True(t, ok)
	assert.Equal(t, "http://publisher/b.pdf", url)
}

func TestSelectUnpaywallURLReturnsFalseWhenNothingUsable(t *testing.T) {
	_, ok := selectUnpaywallURL(unpaywallResponse{}, "")
	assert.False(t, ok)
}
