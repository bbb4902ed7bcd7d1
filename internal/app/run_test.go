package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/alihajali918/sanadedu-sub000/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestRun_WorkerWithoutDatabaseURL_ReturnsError(t *testing.T) {
	clearEnv(t)

	var buf bytes.Buffer
	err := Run(&buf, []string{"worker"})
	if !errors.Is(err, config.ErrDatabaseURLMissing) {
		t.Fatalf("Run(worker) error = %v, want %v", err, config.ErrDatabaseURLMissing)
	}
}

func TestRun_MigrateWithoutDatabaseURL_ReturnsError(t *testing.T) {
	clearEnv(t)

	var buf bytes.Buffer
	err := Run(&buf, []string{"migrate"})
	if !errors.Is(err, config.ErrDatabaseURLMissing) {
		t.Fatalf("Run(migrate) error = %v, want %v", err, config.ErrDatabaseURLMissing)
	}
}

func TestRun_UnknownCommand_ReturnsError(t *testing.T) {
	clearEnv(t)

	var buf bytes.Buffer
	err := Run(&buf, []string{"wroker"})
	if !errors.Is(err, ErrUnknownCommand) {
		t.Fatalf("Run(wroker) error = %v, want %v", err, ErrUnknownCommand)
	}
	if buf.Len() != 0 {
		t.Errorf("unknown command should fail before logging, got %q", buf.String())
	}
}

func TestRun_WithInvalidEnv_ReturnsError(t *testing.T) {
	clearEnv(t)
	t.Setenv("NEWS_FEED_URL", "not a url")

	var buf bytes.Buffer
	if err := Run(&buf, []string{"serve"}); err == nil {
		t.Fatal("Run with invalid env should return error")
	}
}

func TestRunServe_StopsOnCancel(t *testing.T) {
	clearEnv(t)
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load error: %v", err)
	}
	cfg.ServerPort = "0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runServe(ctx, cfg) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("runServe returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runServe did not stop after cancel")
	}
}

func TestRunHealthcheck(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{name: "healthy", status: http.StatusOK, wantErr: false},
		{name: "unhealthy", status: http.StatusServiceUnavailable, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/health" {
					t.Errorf("path = %q, want /health", r.URL.Path)
				}
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			u, _ := url.Parse(srv.URL)
			_, port, _ := net.SplitHostPort(u.Host)

			err := runHealthcheck(port)
			if (err != nil) != tt.wantErr {
				t.Errorf("runHealthcheck() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRunHealthcheck_NoServer(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := strconv.Itoa(l.Addr().(*net.TCPAddr).Port)
	l.Close()

	if err := runHealthcheck(port); err == nil {
		t.Error("expected error when nothing listens on the port")
	}
}

func TestMaskDatabaseURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "postgres://user:secret@db:5432/sanad?sslmode=disable", want: "postgres://***@db:5432/sanad"},
		{in: "postgres://db:5432/sanad", want: "postgres://db:5432/sanad"},
		{in: "not-a-url", want: "***"},
	}

	for _, tt := range tests {
		if got := maskDatabaseURL(tt.in); got != tt.want {
			t.Errorf("maskDatabaseURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
