// Package jobstore holds the persisted collection of job listings found by the
// search worker, plus the merge/dedup rules that reconcile incoming batches
// against it.
package jobstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ID is a job identifier. The worker is inconsistent about emitting numeric
// vs. string ids, so ID accepts both on the wire and normalizes to a string.
type ID string

func (id ID) String() string { return string(id) }

// Int64 returns the numeric form of the id, or an error if it is not numeric.
func (id ID) Int64() (int64, error) {
	n, err := strconv.ParseInt(string(id), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("job id %q is not numeric", string(id))
	}
	return n, nil
}

func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(id))
}

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("job id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// Ampel is the traffic-light priority classification attached to a job.
type Ampel struct {
	Color      string  `json:"color"`
	Label      string  `json:"label,omitempty"`
	Priority   int     `json:"priority,omitempty"`
	Percentile float64 `json:"percentile,omitempty"`
	Tier       string  `json:"tier,omitempty"`
}

// Job is a single candidate listing.
type Job struct {
	ID            ID         `json:"id"`
	Title         string     `json:"title"`
	Company       string     `json:"company"`
	Location      string     `json:"location,omitempty"`
	Platform      string     `json:"platform,omitempty"`
	URL           string     `json:"url"`
	Score         float64    `json:"score,omitempty"`
	MLScore       *float64   `json:"ml_score,omitempty"`
	CombinedScore *float64   `json:"combined_score,omitempty"`
	Ampel         *Ampel     `json:"ampel,omitempty"`
	Applied       bool       `json:"applied,omitempty"`
	Hidden        bool       `json:"hidden,omitempty"`
	FirstSeen     *time.Time `json:"first_seen,omitempty"`
	DatePosted    string     `json:"date_posted,omitempty"`
	IsNew         bool       `json:"is_new,omitempty"`
}

// URLKey returns the case-insensitive duplicate key for the job's URL, or ""
// when no URL is present.
func (j Job) URLKey() string {
	return strings.ToLower(strings.TrimSpace(j.URL))
}

// SignatureKey returns the (company, title) duplicate key: lowercased with
// whitespace collapsed, so "ACME  GmbH"/"Acme GmbH" collide.
func (j Job) SignatureKey() string {
	company := normalizeSignaturePart(j.Company)
	title := normalizeSignaturePart(j.Title)
	if company == "" && title == "" {
		return ""
	}
	return company + "|" + title
}

func normalizeSignaturePart(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
