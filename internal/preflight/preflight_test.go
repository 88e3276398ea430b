package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"pickline/internal/config"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/broken":
			w.WriteHeader(http.StatusInternalServerError)
		case r.Header.Get("Authorization") != "Bearer good":
			w.WriteHeader(http.StatusUnauthorized)
		case r.URL.Path == "/missing":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	cases := []struct {
		path   string
		token  string
		passed bool
	}{
		{"/ok", "good", true},
		{"/missing", "good", true},
		{"/ok", "bad", false},
		{"/broken", "good", false},
	}
	for _, tc := range cases {
		result := CheckHTTP(context.Background(), "svc", srv.URL+tc.path, tc.token)
		if result.Passed != tc.passed {
			t.Fatalf("%s with %q: expected passed=%v, got %#v", tc.path, tc.token, tc.passed, result)
		}
	}
	if result := CheckHTTP(context.Background(), "svc", "", ""); result.Passed {
		t.Fatal("expected failure for missing URL")
	}
}

func TestRunServer_NilConfig(t *testing.T) {
	if results := RunServer(context.Background(), nil); results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Server.DataDir = t.TempDir()
	cfg.Server.LogDir = t.TempDir()
	cfg.Orders.BaseURL = srv.URL
	cfg.Notifications.NtfyTopic = ""

	results := RunServer(context.Background(), &cfg)
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures: %#v", failed)
	}
	if results[3].Detail != "Disabled" {
		t.Fatalf("expected notifications disabled, got %q", results[3].Detail)
	}
}

func TestRunDevice_ReportsUnreachableServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	url := srv.URL
	srv.Close()

	cfg := config.Default()
	cfg.Device.DataDir = t.TempDir()
	cfg.Device.ServerURL = url

	results := RunDevice(context.Background(), &cfg)
	failed := Failed(results)
	if len(failed) != 1 || failed[0].Name != "Pickline server" {
		t.Fatalf("expected only the server check to fail, got %#v", results)
	}
}
