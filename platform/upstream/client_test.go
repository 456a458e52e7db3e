package upstream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
)

type pingResponse struct {
	OK bool `json:"ok"`
}

func newTestClient(srv *httptest.Server) *Client {
	return New(Config{
		Service: "test",
		BaseURL: srv.URL,
		Token:   "secret",
		Retry:   RetryPolicy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond},
	}, nil)
}

func TestGetJSONRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("missing bearer token")
		}
		if r.URL.Query().Get("cursor") != "abc" {
			t.Errorf("query not forwarded: %s", r.URL.RawQuery)
		}
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	var out pingResponse
	err := newTestClient(srv).GetJSON(context.Background(), "/ping", url.Values{"cursor": {"abc"}}, &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.OK {
		t.Fatalf("response not decoded")
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 calls, got %d", calls.Load())
	}
}

func TestGetJSONDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	var out pingResponse
	err := newTestClient(srv).GetJSON(context.Background(), "/missing", nil, &out)
	if !IsNotFound(err) {
		t.Fatalf("expected not found error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single call, got %d", calls.Load())
	}
}

func TestGetJSONGivesUpAfterBudget(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	var out pingResponse
	if err := newTestClient(srv).GetJSON(context.Background(), "/down", nil, &out); err == nil {
		t.Fatalf("expected error")
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 calls, got %d", calls.Load())
	}
}

func TestGetJSONDoesNotRetryUndecodableBodies(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"ok":`))
	}))
	defer srv.Close()

	var out pingResponse
	err := newTestClient(srv).GetJSON(context.Background(), "/broken", nil, &out)
	if err == nil {
		t.Fatalf("expected decode error")
	}
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		t.Fatalf("permanent marker leaked to the caller: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single call, got %d", calls.Load())
	}
}
