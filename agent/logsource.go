package agent

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
)

// windowLines caps how many matching lines each lookback window returns.
// Timestamps are not parsed; recency is approximated by taking the tail
// of the file.
var windowLines = map[string]int{
	"5m":  10,
	"15m": 30,
	"30m": 50,
	"1h":  100,
	"6h":  300,
	"1d":  500,
}

const defaultWindowCap = 100

// FileLogSource reads logs from a local file, the way a dev setup tails
// its application log. Production deployments point HTTPLogSource at a
// log aggregator instead.
type FileLogSource struct {
	Path string
}

// Fetch implements LogSource.
func (s *FileLogSource) Fetch(ctx context.Context, f Filter) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := os.ReadFile(s.Path)
	if os.IsNotExist(err) {
		// Missing file means the app has not logged anything yet.
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read log file %s: %w", s.Path, err)
	}
	if len(data) == 0 {
		return "", nil
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	matched := filterSeverity(lines, f.Severity)

	limit := defaultWindowCap
	if n, ok := windowLines[f.Window]; ok {
		limit = n
	}
	if len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	return strings.Join(matched, "\n"), nil
}

// filterSeverity keeps lines containing the severity marker. CRITICAL
// lines always pass regardless of the requested severity.
func filterSeverity(lines []string, severity string) []string {
	if strings.EqualFold(severity, "all") || severity == "" {
		return lines
	}
	marker := strings.ToUpper(severity)

	var matched []string
	for _, line := range lines {
		if strings.Contains(line, marker) || strings.Contains(line, "CRITICAL") {
			matched = append(matched, line)
		}
	}
	return matched
}

// HTTPLogSource fetches logs from a monitoring endpoint that serves
// plain-text log lines, such as a Loki or Grafana proxy.
//
// The window and severity are passed as query parameters ("window",
// "severity"); the same tail caps as FileLogSource apply to the result.
type HTTPLogSource struct {
	// Endpoint is the base URL of the log service.
	Endpoint string

	// Token, when set, is sent as a bearer token.
	Token string

	// Client defaults to http.DefaultClient.
	Client *http.Client
}

// Fetch implements LogSource.
func (s *HTTPLogSource) Fetch(ctx context.Context, f Filter) (string, error) {
	u, err := url.Parse(s.Endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid log endpoint: %w", err)
	}
	q := u.Query()
	if f.Window != "" {
		q.Set("window", f.Window)
	}
	if f.Severity != "" {
		q.Set("severity", f.Severity)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create log request: %w", err)
	}
	if s.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.Token)
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch logs: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return "", nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("log service returned %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read log response: %w", err)
	}
	if len(body) == 0 {
		return "", nil
	}

	lines := strings.Split(strings.TrimRight(string(body), "\n"), "\n")
	limit := defaultWindowCap
	if n, ok := windowLines[f.Window]; ok {
		limit = n
	}
	if len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}
	return strings.Join(lines, "\n"), nil
}
