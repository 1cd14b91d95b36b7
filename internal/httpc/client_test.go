package httpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"state":"RUNNING"}`))
	}))
	defer srv.Close()

	var out struct {
		State string `json:"state"`
	}
	if err := GetJSON(context.Background(), srv.URL, &out); err != nil {
		t.Fatalf("GetJSON() error = %v", err)
	}
	if out.State != "RUNNING" {
		t.Errorf("state = %q", out.State)
	}
}

func TestPostJSONSendsBody(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	if err := PostJSON(context.Background(), srv.URL, map[string]string{"command": "CALIBRATE"}, nil); err != nil {
		t.Fatalf("PostJSON() error = %v", err)
	}
	if got["command"] != "CALIBRATE" {
		t.Errorf("server got %v", got)
	}
}

func TestStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"Invalid command"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	err := PostJSON(context.Background(), srv.URL, map[string]string{}, nil)
	var serr *StatusError
	if !errors.As(err, &serr) {
		t.Fatalf("error = %v, want *StatusError", err)
	}
	if serr.StatusCode != http.StatusBadRequest || serr.Body != `{"error":"Invalid command"}` {
		t.Errorf("StatusError = %+v", serr)
	}
}
