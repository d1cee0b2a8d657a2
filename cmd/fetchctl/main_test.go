package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/urfave/cli/v2"
)

func TestSubmitWait(t *testing.T) {
	var polls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]any{"success": true, "downloadId": "abc", "status": "pending"})
		case http.MethodGet:
			status, progress := "downloading", 40
			if atomic.AddInt32(&polls, 1) > 1 {
				status, progress = "completed", 100
			}
			json.NewEncoder(w).Encode(map[string]any{"downloadId": "abc", "status": status, "progress": progress})
		}
	}))
	defer srv.Close()

	var out bytes.Buffer
	err := newApp(&out).Run([]string{"fetchctl", "--server", srv.URL, "submit", "--wait", "--interval", "5ms", "https://example.com/a.zip"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	got := out.String()
	for _, want := range []string{"submitted abc", "downloading 40%", "completed 100%"} {
		if !strings.Contains(got, want) {
			t.Fatalf("output %q missing %q", got, want)
		}
	}
}

func TestStatusRequiresID(t *testing.T) {
	var out bytes.Buffer
	app := newApp(&out)
	app.ExitErrHandler = func(*cli.Context, error) {}
	if err := app.Run([]string{"fetchctl", "status"}); err == nil {
		t.Fatal("expected missing argument error")
	}
}

func TestList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"downloads": []map[string]any{
			{"downloadId": "abc", "status": "completed", "progress": 100, "originalUrl": "https://example.com/a.zip", "createdAt": "2024-01-01T00:00:00Z"},
		}})
	}))
	defer srv.Close()

	var out bytes.Buffer
	if err := newApp(&out).Run([]string{"fetchctl", "--server", srv.URL, "list"}); err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out.String(), "abc") || !strings.Contains(out.String(), "https://example.com/a.zip") {
		t.Fatalf("output = %q", out.String())
	}
}
