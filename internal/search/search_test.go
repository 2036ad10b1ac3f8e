package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "golang generics", r.URL.Query().Get("q"))
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"AbstractText":"Go is a language.","AbstractSource":"Wikipedia","RelatedTopics":[]}`))
	}))
	defer srv.Close()

	res, err := New(srv.URL+"/", time.Second).Search(context.Background(), "golang generics")
	require.NoError(t, err)
	assert.Equal(t, "Go is a language.", res.Abstract)
	assert.Equal(t, "Wikipedia", res.Source)
	assert.JSONEq(t, `{"AbstractText":"Go is a language.","AbstractSource":"Wikipedia","RelatedTopics":[]}`, string(res.Raw))
}

func TestSearchErrors(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"status": func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
		},
		"invalid json": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`<html>`))
		},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(h)
			defer srv.Close()
			_, err := New(srv.URL, time.Second).Search(context.Background(), "q")
			assert.Error(t, err)
		})
	}
}

func TestSearchUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url, time.Second).Search(context.Background(), "q")
	assert.Error(t, err)
}
