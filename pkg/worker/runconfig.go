package worker

import (
	"fmt"
	"strings"
)

// Default search parameters. These mirror what the worker itself assumes
// when flags are omitted.
const (
	DefaultMaxJobs    = 15
	DefaultMaxAgeDays = 30
)

// RunConfig is the user-specified search for one session. It is owned by the
// caller and read once at spawn time; a running worker never sees changes.
type RunConfig struct {
	Keywords   string          `json:"keywords"`
	Location   string          `json:"location,omitempty"`
	Remote     bool            `json:"remote,omitempty"`
	MaxJobs    int             `json:"max_jobs,omitempty"`
	MaxAgeDays int             `json:"max_age_days,omitempty"`
	Providers  map[string]bool `json:"providers,omitempty"`
}

// DefaultRunConfig is what ResetSearchConfig restores.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		MaxJobs:    DefaultMaxJobs,
		MaxAgeDays: DefaultMaxAgeDays,
	}
}

// Validate enforces the start preconditions: usable keyword text and at
// least one of location / remote so the search is geographically anchored.
func (c RunConfig) Validate() error {
	if len(strings.TrimSpace(c.Keywords)) < 2 {
		return fmt.Errorf("keywords must be at least 2 characters")
	}
	if strings.TrimSpace(c.Location) == "" && !c.Remote {
		return fmt.Errorf("either a location or the remote flag is required")
	}
	return nil
}

// Args derives the worker command line from the search parameters.
func (c RunConfig) Args() []string {
	maxJobs := c.MaxJobs
	if maxJobs <= 0 {
		maxJobs = DefaultMaxJobs
	}
	maxAge := c.MaxAgeDays
	if maxAge <= 0 {
		maxAge = DefaultMaxAgeDays
	}

	args := []string{
		"--keywords", strings.TrimSpace(c.Keywords),
		"--max-jobs", fmt.Sprintf("%d", maxJobs),
		"--job-age-days", fmt.Sprintf("%d", maxAge),
	}
	if loc := strings.TrimSpace(c.Location); loc != "" {
		args = append(args, "--location", loc)
	}
	if c.Remote {
		args = append(args, "--remote")
	}
	if enabled, ok := c.Providers["stepstone"]; ok && !enabled {
		args = append(args, "--skip-stepstone")
	}
	args = append(args, "--interactive", "--json-output")
	return args
}
