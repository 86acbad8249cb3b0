package processor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchProfileStripsMarkup(t *testing.T) {
	var sawUserAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawUserAgent = r.Header.Get("User-Agent")
		w.Write([]byte(`<html><head><style>body { color: red; }</style>
<script>var tracked = true;</script></head>
<body><h1>Jane Doe</h1><p>Senior   Gopher at <b>Acme</b></p></body></html>`))
	}))
	defer srv.Close()

	f := NewHTTPProfileFetcher()
	text, err := f.FetchProfile(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, "Jane Doe Senior Gopher at Acme", text)
	assert.NotContains(t, text, "tracked")
	assert.NotContains(t, text, "color")
	assert.NotEmpty(t, sawUserAgent)
}

func TestFetchProfileNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	f := NewHTTPProfileFetcher()
	_, err := f.FetchProfile(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestFetchProfileBadURL(t *testing.T) {
	f := NewHTTPProfileFetcher()
	_, err := f.FetchProfile(context.Background(), "http://[::1]:namedport")
	require.Error(t, err)
}

func TestStripMarkupPlainTextPassthrough(t *testing.T) {
	assert.Equal(t, "just plain text", stripMarkup("just  plain\n text"))
}
