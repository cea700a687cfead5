package staffpage

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const staffHTML = `<html><body>
<a href="/about">About</a>
<a href="https://www.scopus.com/authid/detail.uri?authorId=57190000001&amp;origin=x">Scopus</a>
<a href="https://www.scopus.com/authid/detail.uri?authorId=999">Second Scopus</a>
<a href="https://scholar.google.com.au/citations?user=AbCdEf&amp;hl=en">Google Scholar</a>
<a href="https://orcid.org/0000-0002-8265-0503/print">ORCID</a>
</body></html>`

func TestStaffURL(t *testing.T) {
	assert.Equal(t, "https://people.unisa.edu.au/Jane.Doe", StaffURL("", " Jane ", "Doe"))
	assert.Equal(t, "https://x/Mary%20Ann.O%27Neil", StaffURL("https://x/{first}.{last}", "Mary Ann", "O'Neil"))
}

func TestExtractIdentifiers(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(staffHTML))
	require.NoError(t, err)

	ids := ExtractIdentifiers(doc)
	assert.Equal(t, Identifiers{
		ScopusID:  "57190000001",
		ScholarID: "AbCdEf",
		ORCIDID:   "0000-0002-8265-0503",
	}, ids)
}

func TestScraper_Enrich(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Jane.Doe" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, staffHTML)
	}))
	defer server.Close()

	scraper := New(Config{URLTemplate: server.URL + "/{first}.{last}"}, zerolog.Nop(), nil)
	staffURL := scraper.StaffURL("Jane", "Doe")

	t.Run("fills only empty identifiers", func(t *testing.T) {
		got := scraper.Enrich(context.Background(), staffURL, Identifiers{ScholarID: "kept"})
		assert.Equal(t, "57190000001", got.ScopusID)
		assert.Equal(t, "kept", got.ScholarID)
		assert.Equal(t, "0000-0002-8265-0503", got.ORCIDID)
	})

	t.Run("missing page returns input", func(t *testing.T) {
		in := Identifiers{ORCIDID: "x"}
		got := scraper.Enrich(context.Background(), scraper.StaffURL("No", "Body"), in)
		assert.Equal(t, in, got)
	})

	t.Run("complete identifiers skip the request", func(t *testing.T) {
		in := Identifiers{ScopusID: "a", ScholarID: "b", ORCIDID: "c"}
		assert.Equal(t, in, scraper.Enrich(context.Background(), "http://127.0.0.1:1/unreachable", in))
	})
}
