package agent

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLogFile(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app_logs.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

func TestFileLogSource(t *testing.T) {
	ctx := context.Background()

	t.Run("filters by severity marker", func(t *testing.T) {
		path := writeLogFile(t,
			"2026-08-29 INFO  request served",
			"2026-08-29 ERROR KeyError: 'api_key'",
			"2026-08-29 DEBUG cache warm",
			"2026-08-29 ERROR retry exhausted",
		)
		src := &FileLogSource{Path: path}

		logs, err := src.Fetch(ctx, Filter{Window: "1h", Severity: "error"})
		require.NoError(t, err)

		lines := strings.Split(logs, "\n")
		require.Len(t, lines, 2)
		assert.Contains(t, lines[0], "KeyError")
		assert.Contains(t, lines[1], "retry exhausted")
	})

	t.Run("critical lines always pass", func(t *testing.T) {
		path := writeLogFile(t,
			"WARN  disk filling up",
			"CRITICAL out of memory",
		)
		src := &FileLogSource{Path: path}

		logs, err := src.Fetch(ctx, Filter{Severity: "error"})
		require.NoError(t, err)
		assert.Equal(t, "CRITICAL out of memory", logs)
	})

	t.Run("severity all disables the filter", func(t *testing.T) {
		path := writeLogFile(t, "INFO a", "DEBUG b")
		src := &FileLogSource{Path: path}

		logs, err := src.Fetch(ctx, Filter{Severity: "all"})
		require.NoError(t, err)
		assert.Equal(t, "INFO a\nDEBUG b", logs)
	})

	t.Run("window caps the tail", func(t *testing.T) {
		lines := make([]string, 25)
		for i := range lines {
			lines[i] = fmt.Sprintf("ERROR event %d", i)
		}
		src := &FileLogSource{Path: writeLogFile(t, lines...)}

		logs, err := src.Fetch(ctx, Filter{Window: "5m", Severity: "error"})
		require.NoError(t, err)

		got := strings.Split(logs, "\n")
		require.Len(t, got, 10)
		assert.Equal(t, "ERROR event 15", got[0], "cap keeps the most recent lines")
		assert.Equal(t, "ERROR event 24", got[9])
	})

	t.Run("unknown window uses the default cap", func(t *testing.T) {
		lines := make([]string, 120)
		for i := range lines {
			lines[i] = fmt.Sprintf("ERROR event %d", i)
		}
		src := &FileLogSource{Path: writeLogFile(t, lines...)}

		logs, err := src.Fetch(ctx, Filter{Window: "2w", Severity: "error"})
		require.NoError(t, err)
		assert.Len(t, strings.Split(logs, "\n"), 100)
	})

	t.Run("missing file is empty, not an error", func(t *testing.T) {
		src := &FileLogSource{Path: filepath.Join(t.TempDir(), "nope.txt")}
		logs, err := src.Fetch(ctx, Filter{})
		require.NoError(t, err)
		assert.Empty(t, logs)
	})
}

func TestHTTPLogSource(t *testing.T) {
	ctx := context.Background()

	t.Run("passes filter and auth, returns body", func(t *testing.T) {
		var gotAuth, gotWindow, gotSeverity string
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			gotWindow = r.URL.Query().Get("window")
			gotSeverity = r.URL.Query().Get("severity")
			fmt.Fprint(w, "ERROR nil pointer dereference\n")
		}))
		defer ts.Close()

		src := &HTTPLogSource{Endpoint: ts.URL, Token: "secret", Client: ts.Client()}
		logs, err := src.Fetch(ctx, Filter{Window: "15m", Severity: "error"})
		require.NoError(t, err)

		assert.Equal(t, "ERROR nil pointer dereference", logs)
		assert.Equal(t, "Bearer secret", gotAuth)
		assert.Equal(t, "15m", gotWindow)
		assert.Equal(t, "error", gotSeverity)
	})

	t.Run("window caps the response tail", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for i := 0; i < 40; i++ {
				fmt.Fprintf(w, "ERROR event %d\n", i)
			}
		}))
		defer ts.Close()

		src := &HTTPLogSource{Endpoint: ts.URL, Client: ts.Client()}
		logs, err := src.Fetch(ctx, Filter{Window: "15m"})
		require.NoError(t, err)

		got := strings.Split(logs, "\n")
		require.Len(t, got, 30)
		assert.Equal(t, "ERROR event 10", got[0])
	})

	t.Run("404 means no logs yet", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		}))
		defer ts.Close()

		src := &HTTPLogSource{Endpoint: ts.URL, Client: ts.Client()}
		logs, err := src.Fetch(ctx, Filter{})
		require.NoError(t, err)
		assert.Empty(t, logs)
	})

	t.Run("server error is surfaced", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer ts.Close()

		src := &HTTPLogSource{Endpoint: ts.URL, Client: ts.Client()}
		_, err := src.Fetch(ctx, Filter{})
		assert.ErrorContains(t, err, "500")
	})
}
