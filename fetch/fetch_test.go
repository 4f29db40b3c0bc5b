package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHTTPFetcher_ParsesDocument verifies a 200 response is parsed
func TestHTTPFetcher_ParsesDocument(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte(`<html><head><title>Forum</title></head><body></body></html>`))
	}))
	defer server.Close()

	doc, err := NewHTTPFetcher().Fetch(context.Background(), server.URL)
	require.NoError(t, err)

	assert.Equal(t, "Forum", doc.Find("title").Text())
	assert.Equal(t, DefaultUserAgent, gotUA, "should send a browser-like User-Agent")
}

// TestHTTPFetcher_CustomUserAgent verifies the User-Agent option
func TestHTTPFetcher_CustomUserAgent(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
	}))
	defer server.Close()

	_, err := NewHTTPFetcher(WithUserAgent("forumsent-test")).Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "forumsent-test", gotUA)
}

// TestHTTPFetcher_HTTPError verifies non-2xx responses become FetchErrors
func TestHTTPFetcher_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := NewHTTPFetcher().Fetch(context.Background(), server.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFetch)

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, http.StatusServiceUnavailable, fe.StatusCode)
}

// TestHTTPFetcher_Timeout verifies slow responses surface as FetchErrors
func TestHTTPFetcher_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	_, err := NewHTTPFetcher(WithTimeout(20*time.Millisecond)).Fetch(context.Background(), server.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFetch)
}

// TestHTTPFetcher_TimeoutLeavesCallerClient verifies WithTimeout never
// changes a client passed with WithClient, in either option order
func TestHTTPFetcher_TimeoutLeavesCallerClient(t *testing.T) {
	client := &http.Client{Timeout: 5 * time.Second}

	before := NewHTTPFetcher(WithTimeout(time.Second), WithClient(client))
	after := NewHTTPFetcher(WithClient(client), WithTimeout(time.Second))

	assert.Equal(t, 5*time.Second, client.Timeout)
	assert.Equal(t, time.Second, before.client.Timeout)
	assert.Equal(t, time.Second, after.client.Timeout)
	assert.NotSame(t, client, after.client)

	kept := NewHTTPFetcher(WithClient(client))
	assert.Same(t, client, kept.client)
}

// TestHTTPFetcher_TransportError verifies unreachable hosts surface as FetchErrors
func TestHTTPFetcher_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := NewHTTPFetcher().Fetch(context.Background(), url)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFetch)
}

type flakyFetcher struct {
	failures int
	status   int
	calls    atomic.Int32
}

func (f *flakyFetcher) Fetch(_ context.Context, url string) (*goquery.Document, error) {
	n := int(f.calls.Add(1))
	if n <= f.failures {
		return nil, &FetchError{URL: url, StatusCode: f.status, Err: errors.New("boom")}
	}
	return goquery.NewDocumentFromReader(strings.NewReader("<html></html>"))
}

// TestRetryFetcher_RecoversFromTransientFailure verifies bounded retries
func TestRetryFetcher_RecoversFromTransientFailure(t *testing.T) {
	inner := &flakyFetcher{failures: 2, status: http.StatusBadGateway}
	r := NewRetryFetcher(inner, 3, time.Millisecond, nil)

	_, err := r.Fetch(context.Background(), "http://example.com")
	require.NoError(t, err)
	assert.Equal(t, int32(3), inner.calls.Load())
}

// TestRetryFetcher_GivesUp verifies the attempt bound
func TestRetryFetcher_GivesUp(t *testing.T) {
	inner := &flakyFetcher{failures: 10, status: http.StatusBadGateway}
	r := NewRetryFetcher(inner, 2, time.Millisecond, nil)

	_, err := r.Fetch(context.Background(), "http://example.com")
	require.Error(t, err)
	assert.Equal(t, int32(2), inner.calls.Load())
}

// TestRetryFetcher_SingleAttemptByDefault verifies attempts < 1 means no retry
func TestRetryFetcher_SingleAttemptByDefault(t *testing.T) {
	inner := &flakyFetcher{failures: 1, status: http.StatusBadGateway}
	r := NewRetryFetcher(inner, 0, time.Millisecond, nil)

	_, err := r.Fetch(context.Background(), "http://example.com")
	require.Error(t, err)
	assert.Equal(t, int32(1), inner.calls.Load())
}

// TestRetryFetcher_NoRetryOnNotFound verifies client errors are final
func TestRetryFetcher_NoRetryOnNotFound(t *testing.T) {
	inner := &flakyFetcher{failures: 10, status: http.StatusNotFound}
	r := NewRetryFetcher(inner, 5, time.Millisecond, nil)

	_, err := r.Fetch(context.Background(), "http://example.com")
	require.Error(t, err)
	assert.Equal(t, int32(1), inner.calls.Load())
}
