package pubmed

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArticleSet(t *testing.T) {
	t.Parallel()

	f, err := os.Open("testdata/efetch.xml")
	require.NoError(t, err)
	defer f.Close()

	records, err := ParseArticleSet(f)
	require.NoError(t, err)
	require.Len(t, records, 2)

	rec := records[0]
	assert.Equal(t, "31570000", rec.PMID)
	assert.Equal(t, "Adjuvant trastuzumab in HER2-positive early breast cancer & beyond.", rec.Title)
	assert.Equal(t, []string{"Smith J", "Doe RA", "Breast Cancer Trials Group"}, rec.Authors)
	assert.Equal(t, "J Clin Oncol", rec.BriefJournal)
	assert.Equal(t, "8309333", rec.JournalID)
	assert.Equal(t, "37", rec.Volume)
	assert.Equal(t, "34", rec.Issue)
	assert.Equal(t, "3251-3262", rec.Pages)
	assert.Equal(t, "2019", rec.Year)
	assert.Equal(t, "PURPOSE: To compare outcomes.\nRESULTS: Survival improved.", rec.Abstract)
	assert.Equal(t, time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC), rec.Revised)
	assert.True(t, strings.HasPrefix(rec.XML, "<PubmedArticle>"))
	assert.True(t, strings.HasSuffix(rec.XML, "</PubmedArticle>"))
	assert.Contains(t, rec.XML, "<PMID Version=\"1\">31570000</PMID>")

	old := records[1]
	assert.Equal(t, "1998", old.Year)
	assert.Equal(t, "Ann Oncol", old.BriefJournal)
	assert.Empty(t, old.Authors)
	assert.Empty(t, old.Abstract)
}

func TestParseArticleRoundTripsStoredXML(t *testing.T) {
	t.Parallel()

	f, err := os.Open("testdata/efetch.xml")
	require.NoError(t, err)
	defer f.Close()

	records, err := ParseArticleSet(f)
	require.NoError(t, err)

	again, err := ParseArticle([]byte(records[0].XML))
	require.NoError(t, err)
	assert.Equal(t, records[0].PMID, again.PMID)
	assert.Equal(t, records[0].Title, again.Title)
	assert.Equal(t, records[0].Revised, again.Revised)
}

func TestParseArticleRejectsMissingPMID(t *testing.T) {
	t.Parallel()

	_, err := ParseArticle([]byte("<PubmedArticle><MedlineCitation></MedlineCitation></PubmedArticle>"))
	assert.Error(t, err)
}
