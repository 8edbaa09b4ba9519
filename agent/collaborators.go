package agent

import "context"

// LogSource retrieves application logs for investigation.
type LogSource interface {
	// Fetch returns log lines matching the filter. An empty result is
	// not an error: it means nothing matched, and the workflow treats
	// it as "no evidence yet" rather than a failure.
	Fetch(ctx context.Context, f Filter) (string, error)
}

// Filter narrows a log fetch.
type Filter struct {
	// Window is a lookback label: "5m", "15m", "30m", "1h", "6h", "1d".
	// Unknown values fall back to the 1h window.
	Window string

	// Severity keeps only lines containing the severity marker
	// ("error", "warning", "info"). "all" disables filtering.
	// CRITICAL lines always pass.
	Severity string
}

// Validator checks a generated fix before it can be published.
type Validator interface {
	// Validate runs static checks on code. A failed check is reported
	// in the Verdict, not as an error; the error return is for the
	// validator itself being unable to run.
	Validate(ctx context.Context, code string) (Verdict, error)
}

// Verdict is the outcome of validating a fix.
type Verdict struct {
	Passed bool

	// Errors lists the specific issues found, in the order detected.
	Errors []string
}

// Publisher delivers a validated fix, typically as a pull request.
type Publisher interface {
	Publish(ctx context.Context, req PublishRequest) (PublishResult, error)
}

// PublishRequest describes the fix to deliver.
type PublishRequest struct {
	Title    string
	Body     string
	FixCode  string
	FilePath string

	// Branch is the head branch name. Auto-generated when empty.
	Branch string
}

// PublishResult reports where the fix landed.
type PublishResult struct {
	// Status is PRCreated or PRFailed.
	Status string

	// URL locates the created pull request, or describes the failure.
	URL string
}
