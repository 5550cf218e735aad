package stt

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscribeExtractsTranscript(t *testing.T) {
	var gotQuery string
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"results":{"channels":[{"alternatives":[{"transcript":"hello world"}]}]}}`))
	}))
	defer srv.Close()

	c := NewDeepgramClient("dg-key", WithDeepgramBaseURL(srv.URL))
	text, err := c.Transcribe(context.Background(), []byte("audio"), "th")
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)
	assert.Equal(t, "Token dg-key", gotAuth)
	assert.Contains(t, gotQuery, "language=th")
	assert.NotContains(t, gotQuery, "detect_language")
}

func TestTranscribeAutoDetectsLanguage(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{"results":{"channels":[]}}`))
	}))
	defer srv.Close()

	c := NewDeepgramClient("dg-key", WithDeepgramBaseURL(srv.URL))
	text, err := c.Transcribe(context.Background(), []byte("audio"), "auto")
	require.NoError(t, err)
	assert.Empty(t, text, "no channels means silence, not an error")
	assert.Contains(t, gotQuery, "detect_language=true")
}

func TestTranscribeSurfacesProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewDeepgramClient("dg-key", WithDeepgramBaseURL(srv.URL))
	_, err := c.Transcribe(context.Background(), []byte("audio"), "en")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
