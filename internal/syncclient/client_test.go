package syncclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/azula9713/yae-their-share/internal/models"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestRecordsRoundTrip(t *testing.T) {
	var gotAuth, gotQuery string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/records", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var s models.Split
		if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
			writeJSON(w, http.StatusBadRequest, apiError{Code: "bad_request", Message: err.Error()})
			return
		}
		writeJSON(w, http.StatusCreated, s)
	})
	mux.HandleFunc("GET /v1/records", func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		writeJSON(w, http.StatusOK, RecordsResponse{Records: []models.Split{{SplitID: "s1", Name: "Trip", CreatedBy: "u1"}}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.URL, "tok", Options{})
	ctx := context.Background()

	created, err := c.CreateRecord(ctx, models.Split{SplitID: "s1", Name: "Trip", CreatedBy: "u1"})
	if err != nil {
		t.Fatalf("CreateRecord failed: %v", err)
	}
	if created.SplitID != "s1" || gotAuth != "Bearer tok" {
		t.Errorf("got %+v, auth %q", created, gotAuth)
	}

	recs, err := c.RecordsByOwner(ctx, "u1")
	if err != nil {
		t.Fatalf("RecordsByOwner failed: %v", err)
	}
	if len(recs) != 1 || recs[0].Name != "Trip" {
		t.Errorf("records: %+v", recs)
	}
	if gotQuery != "include_deleted=true&owner=u1" {
		t.Errorf("query: got %q", gotQuery)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusForbidden, ErrForbidden},
		{http.StatusNotFound, ErrNotFound},
		{http.StatusConflict, ErrConflict},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, tt.status, apiError{Code: "x", Message: "nope"})
		}))
		c := New(srv.URL, "", Options{})
		_, err := c.RecordByID(context.Background(), "s1")
		srv.Close()
		if !errors.Is(err, tt.want) {
			t.Errorf("status %d: got %v, want %v", tt.status, err, tt.want)
		}
		if !IsDomainError(err) {
			t.Errorf("status %d: should be a domain error", tt.status)
		}
	}
}

func TestServerErrorIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, apiError{Code: "internal", Message: "db down"})
	}))
	defer srv.Close()

	err := New(srv.URL, "", Options{}).DeleteRecord(context.Background(), "s1")
	if err == nil || IsDomainError(err) {
		t.Errorf("got %v, want a transport error", err)
	}
}

func TestBreakerOpensOnTransportFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(srv.URL, "", Options{BreakerFailures: 2, BreakerTimeout: time.Minute})
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := c.DeleteRecord(ctx, "s1"); err == nil {
			t.Fatal("expected failure")
		}
	}
	err := c.DeleteRecord(ctx, "s1")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("got %v, want ErrUnavailable", err)
	}
	if hits.Load() != 2 {
		t.Errorf("open breaker should not reach the server: %d hits", hits.Load())
	}
	if c.BreakerState() != "open" {
		t.Errorf("state: got %s", c.BreakerState())
	}

	if _, err := c.HealthCheck(ctx); err == nil {
		t.Error("health check should reach the failing server")
	}
}

func TestDomainErrorsKeepBreakerClosed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusForbidden, apiError{Code: "forbidden", Message: "private"})
	}))
	defer srv.Close()

	c := New(srv.URL, "", Options{BreakerFailures: 1})
	for i := 0; i < 3; i++ {
		_, err := c.RecordByID(context.Background(), "s1")
		if !errors.Is(err, ErrForbidden) {
			t.Fatalf("call %d: got %v, want ErrForbidden", i, err)
		}
	}
	if c.BreakerState() != "closed" {
		t.Errorf("state: got %s, want closed", c.BreakerState())
	}
}
