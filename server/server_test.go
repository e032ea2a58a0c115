package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andy-wagner/Trinity/postings"
)

func testServer(t *testing.T) *httptest.Server {
	w := postings.NewSegmentWriter()
	w.Add(1, "apple", 1, nil)
	w.Add(1, "phone", 2, nil)
	w.Add(2, "apple", 1, nil)
	w.Add(2, "banana", 2, nil)
	w.Add(3, "banana", 1, nil)
	w.Add(3, "phone", 2, nil)
	src, err := w.Segment()
	require.NoError(t, err)

	srv := httptest.NewServer(NewServer(src, nil, nil).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func getSearch(t *testing.T, srv *httptest.Server, q string) (int, *SearchResponse) {
	resp, err := http.Get(srv.URL + "/search?q=" + q)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body SearchResponse
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	}
	return resp.StatusCode, &body
}

func TestSearchHandler(t *testing.T) {
	srv := testServer(t)

	status, body := getSearch(t, srv, "apple")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 2, body.Total)
	require.Len(t, body.Hits, 2)
	assert.Equal(t, uint32(1), body.Hits[0].DocID)
	assert.Equal(t, uint32(2), body.Hits[1].DocID)
	require.Len(t, body.Hits[0].Terms, 1)
	assert.Equal(t, "apple", body.Hits[0].Terms[0].Token)
	assert.Equal(t, []uint16{1}, body.Hits[0].Terms[0].Positions)

	status, body = getSearch(t, srv, "apple+AND+phone")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, body.Total)

	status, body = getSearch(t, srv, "pear")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 0, body.Total)
}

func TestSearchHandler_BadRequest(t *testing.T) {
	srv := testServer(t)

	status, _ := getSearch(t, srv, "")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = getSearch(t, srv, "%28apple")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestStatsHandler(t *testing.T) {
	srv := testServer(t)

	resp, err := http.Get(srv.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats struct {
		NumDocs  int `json:"ndocs"`
		NumTerms int `json:"nterms"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, 3, stats.NumDocs)
	assert.Equal(t, 3, stats.NumTerms)
}
