package drafts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Client pushes drafts to the external draft API.
type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

func NewClient(baseURL string, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     log,
	}
}

type createDraftRequest struct {
	Company    string `json:"company"`
	JobTitle   string `json:"job_title"`
	LetterText string `json:"letter_text"`
}

// SaveDraft posts the letter to POST /drafts. Any non-2xx response is an
// error; callers decide whether to fall back to local storage.
func (c *Client) SaveDraft(ctx context.Context, company, jobTitle, letterText string) error {
	body, err := json.Marshal(createDraftRequest{
		Company:    company,
		JobTitle:   jobTitle,
		LetterText: letterText,
	})
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/drafts", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build draft request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post draft: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("draft api returned status %d", resp.StatusCode)
	}

	c.log.Debug("Draft saved via API",
		zap.String("company", company), zap.String("job_title", jobTitle))
	return nil
}
