package csw

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/iziplay/csw-harvester/pkg/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const probeResponse = `<?xml version="1.0" encoding="UTF-8"?>
<csw:GetRecordsResponse xmlns:csw="http://www.opengis.net/cat/csw/2.0.2" version="2.0.2">
  <csw:SearchStatus timestamp="2024-01-01T00:00:00"/>
  <csw:SearchResults numberOfRecordsMatched="25" numberOfRecordsReturned="1" elementSet="full" nextRecord="2"/>
</csw:GetRecordsResponse>`

const pageResponse = `<?xml version="1.0" encoding="UTF-8"?>
<csw:GetRecordsResponse xmlns:csw="http://www.opengis.net/cat/csw/2.0.2"
    xmlns:gmd="http://www.isotc211.org/2005/gmd" xmlns:gco="http://www.isotc211.org/2005/gco">
  <csw:SearchResults numberOfRecordsMatched="2" numberOfRecordsReturned="2" nextRecord="0">
    <gmd:MD_Metadata>
      <gmd:fileIdentifier><gco:CharacterString>first</gco:CharacterString></gmd:fileIdentifier>
    </gmd:MD_Metadata>
    <gmd:MD_Metadata>
      <gmd:fileIdentifier><gco:CharacterString>second</gco:CharacterString></gmd:fileIdentifier>
      <gmd:identificationInfo><gmd:MD_DataIdentification>
        <gmd:citation><gmd:CI_Citation><gmd:title><gco:CharacterString>Second</gco:CharacterString></gmd:title></gmd:CI_Citation></gmd:citation>
      </gmd:MD_DataIdentification></gmd:identificationInfo>
    </gmd:MD_Metadata>
  </csw:SearchResults>
</csw:GetRecordsResponse>`

const exceptionResponse = `<?xml version="1.0" encoding="UTF-8"?>
<ows:ExceptionReport xmlns:ows="http://www.opengis.net/ows" version="1.2.0">
  <ows:Exception exceptionCode="InvalidParameterValue" locator="outputSchema">
    <ows:ExceptionText>Unsupported output schema</ows:ExceptionText>
  </ows:Exception>
</ows:ExceptionReport>`

func serve(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestListPagesGet(t *testing.T) {
	var probes int
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "GetRecords", r.URL.Query().Get("REQUEST"))
		assert.Equal(t, "1", r.URL.Query().Get("MAXRECORDS"))
		probes++
		io.WriteString(w, probeResponse)
	})

	c := NewClient(ClientOptions{})
	pages, err := c.ListPages(context.Background(), Source{URL: srv.URL, Limit: 10, Version: "2.0.2", Method: MethodGet})
	require.NoError(t, err)
	assert.Equal(t, 1, probes)

	require.Len(t, pages, 3)
	for i, start := range []int{1, 11, 21} {
		assert.Equal(t, start, pages[i].Options.Start)
		assert.Equal(t, 10, pages[i].Options.MaxItems)
		assert.Equal(t, PageTimeout, pages[i].Options.Timeout)
		assert.Equal(t, http.MethodGet, pages[i].Options.Method)
		assert.Contains(t, pages[i].URL, "MAXRECORDS=10")
	}
	assert.Contains(t, pages[1].URL, "startPosition=11")
	assert.Contains(t, pages[2].URL, "startPosition=21")
}

func TestListPagesPost(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/xml", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Contains(t, string(body), `maxRecords="1"`)
		io.WriteString(w, probeResponse)
	})

	c := NewClient(ClientOptions{})
	pages, err := c.ListPages(context.Background(), Source{URL: srv.URL, Limit: 20, Method: MethodPost})
	require.NoError(t, err)
	require.Len(t, pages, 2)

	assert.Equal(t, srv.URL, pages[1].URL)
	assert.Equal(t, http.MethodPost, pages[1].Options.Method)

	body, err := tree.ParseXMLBytes([]byte(pages[1].Options.Body), tree.ParseOptions{StripNamespaces: true})
	require.NoError(t, err)
	assert.Equal(t, tree.Array(tree.String("21")), tree.Traverse(body, tree.Keys("GetRecords", "@_startPosition")))
	assert.Equal(t, tree.Array(tree.String("20")), tree.Traverse(body, tree.Keys("GetRecords", "@_maxRecords")))
	assert.Equal(t, tree.Array(tree.String("full")), tree.Traverse(body, tree.Keys("GetRecords", "Query", "ElementSetName")))
}

func TestListPagesNoRecords(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, strings.Replace(probeResponse, `numberOfRecordsMatched="25"`, `numberOfRecordsMatched="0"`, 1))
	})

	pages, err := NewClient(ClientOptions{}).ListPages(context.Background(), Source{URL: srv.URL, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, pages)
}

func TestListPagesErrors(t *testing.T) {
	c := NewClient(ClientOptions{})

	_, err := c.ListPages(context.Background(), Source{URL: "http://localhost", Limit: 0})
	assert.Error(t, err)

	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<csw:GetRecordsResponse xmlns:csw="http://www.opengis.net/cat/csw/2.0.2"/>`)
	})
	_, err = c.ListPages(context.Background(), Source{URL: srv.URL, Limit: 10})
	assert.ErrorIs(t, err, ErrMalformedResponse)

	_, err = c.ListPages(context.Background(), Source{URL: srv.URL, Limit: 10, Method: "put"})
	assert.Error(t, err)
}

func TestFetchPage(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "11", r.URL.Query().Get("startPosition"))
		io.WriteString(w, pageResponse)
	})

	req, err := Source{URL: srv.URL, Limit: 10}.PageRequest(11, 10)
	require.NoError(t, err)

	records, err := NewClient(ClientOptions{}).FetchPage(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "first", records[0].ID)
	assert.Equal(t, "second", records[1].ID)
	assert.Equal(t, tree.Values("Second"), records[1].Title)
}

func TestFetchPageEmptyResults(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, probeResponse)
	})

	records, err := NewClient(ClientOptions{}).FetchPage(context.Background(), PageRequest{URL: srv.URL})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestFetchPageExceptionReport(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, exceptionResponse)
	})

	_, err := NewClient(ClientOptions{}).FetchPage(context.Background(), PageRequest{URL: srv.URL})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrException)
	assert.True(t, IsPageError(err))

	var exc *ExceptionError
	require.True(t, errors.As(err, &exc))
	assert.Equal(t, "InvalidParameterValue", exc.Code)
	assert.Equal(t, "outputSchema", exc.Locator)
	assert.Equal(t, "Unsupported output schema", exc.Text)
	assert.Equal(t, "csw exception report (InvalidParameterValue at outputSchema): Unsupported output schema", exc.Error())
}

func TestFetchPageMalformed(t *testing.T) {
	for name, body := range map[string]string{
		"wrong root": `<html><body>maintenance</body></html>`,
		"not xml":    `maintenance`,
		"truncated":  `<csw:GetRecordsResponse><csw:SearchResults>`,
	} {
		t.Run(name, func(t *testing.T) {
			srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, body)
			})

			_, err := NewClient(ClientOptions{}).FetchPage(context.Background(), PageRequest{URL: srv.URL})
			assert.ErrorIs(t, err, ErrMalformedResponse)
		})
	}
}

func TestFetchPageStatus(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	})

	_, err := NewClient(ClientOptions{}).FetchPage(context.Background(), PageRequest{URL: srv.URL})
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.True(t, IsPageError(err))
}

func TestFetchPageTransportErrorIsNotPageError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	_, err := NewClient(ClientOptions{}).FetchPage(context.Background(), PageRequest{URL: srv.URL})
	require.Error(t, err)
	assert.False(t, IsPageError(err))
}

func TestGetRecordsURL(t *testing.T) {
	src := Source{URL: "http://example.org/csw?lang=ger", SpecialParams: "constraintLanguage=CQL_TEXT"}
	u := src.getRecordsURL(1, 5)

	assert.True(t, strings.HasPrefix(u, "http://example.org/csw?lang=ger&REQUEST=GetRecords&SERVICE=CSW&VERSION=2.0.2"))
	assert.Contains(t, u, "typeNames=gmd:MD_Metadata")
	assert.Contains(t, u, "outputSchema=http://www.isotc211.org/2005/gmd")
	assert.True(t, strings.HasSuffix(u, "&startPosition=1&constraintLanguage=CQL_TEXT"))

	plain := Source{URL: "http://example.org/csw", Version: "2.0.1"}.getRecordsURL(6, 5)
	assert.Contains(t, plain, "csw?REQUEST=GetRecords")
	assert.Contains(t, plain, "VERSION=2.0.1")
}
