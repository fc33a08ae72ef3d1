// Package drafts persists approved application letters. The primary sink is
// the external draft API; a local SQLite archive serves as the fallback so an
// approved letter is never lost to a network hiccup.
package drafts

import (
	"context"
	"time"
)

// Draft is one approved application letter.
type Draft struct {
	ID         string    `json:"id"`
	Company    string    `json:"company"`
	JobTitle   string    `json:"job_title"`
	LetterText string    `json:"letter_text"`
	CreatedAt  time.Time `json:"created_at"`
}

// Saver persists one draft.
type Saver interface {
	SaveDraft(ctx context.Context, company, jobTitle, letterText string) error
}
