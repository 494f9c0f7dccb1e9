package httpclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

func get(t *testing.T, client Client, rawURL, contentType string) ([]byte, error) {
	t.Helper()

	resource, err := url.Parse(rawURL)
	if err != nil {
		t.Fatal(err)
	}

	return client.Get(context.Background(), *resource, contentType, nil)
}

func TestGet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"hello":"world"}`))
	}))
	defer server.Close()

	body, err := get(t, New(Options{}), server.URL, "application/json")
	if err != nil {
		t.Fatalf("Get failed: %s", err)
	}

	if string(body) != `{"hello":"world"}` {
		t.Errorf("unexpected body %s", string(body))
	}
}

func TestGetQueryParams(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("sub") != "https://leaf.example.com" {
			t.Errorf("missing sub query parameter: %s", r.URL.RawQuery)
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	resource, err := url.Parse(server.URL)
	if err != nil {
		t.Fatal(err)
	}

	client := New(Options{})
	if _, err := client.Get(
		context.Background(), *resource, "",
		url.Values{"sub": []string{"https://leaf.example.com"}},
	); err != nil {
		t.Fatalf("Get failed: %s", err)
	}
}

func TestGetNotFoundReturnsBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"not_found"}`))
	}))
	defer server.Close()

	body, err := get(t, New(Options{}), server.URL, "")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}

	// The error body is still returned so callers can surface it
	if string(body) != `{"error":"not_found"}` {
		t.Errorf("unexpected body %s", string(body))
	}
}

func TestGetUnexpectedStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	if _, err := get(t, New(Options{}), server.URL, ""); !errors.Is(err, ErrUnexpectedStatus) {
		t.Errorf("want ErrUnexpectedStatus, got %v", err)
	}
}

func TestGetWrongContentType(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html></html>"))
	}))
	defer server.Close()

	if _, err := get(t, New(Options{}), server.URL, "application/json"); !errors.Is(err, ErrWrongContentType) {
		t.Errorf("want ErrWrongContentType, got %v", err)
	}
}

func TestGetTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer server.Close()

	if _, err := get(t, New(Options{Timeout: 50 * time.Millisecond}), server.URL, ""); !errors.Is(err, ErrTimeout) {
		t.Errorf("want ErrTimeout, got %v", err)
	}
}

func TestGetUnreachable(t *testing.T) {
	// A loopback port with nothing listening
	server := httptest.NewServer(http.NotFoundHandler())
	unreachableURL := server.URL
	server.Close()

	if _, err := get(t, New(Options{Timeout: time.Second}), unreachableURL, ""); !errors.Is(err, ErrUnreachable) {
		t.Errorf("want ErrUnreachable, got %v", err)
	}
}
