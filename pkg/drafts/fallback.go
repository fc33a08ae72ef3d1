package drafts

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// FallbackSaver tries the draft API first and falls back to the local
// archive when the API is unreachable or rejects the draft. Either sink may
// be nil; both nil is a configuration error surfaced on first save.
type FallbackSaver struct {
	remote Saver
	local  Saver
	log    *zap.Logger
}

func NewFallbackSaver(remote, local Saver, log *zap.Logger) *FallbackSaver {
	if log == nil {
		log = zap.NewNop()
	}
	return &FallbackSaver{remote: remote, local: local, log: log}
}

func (f *FallbackSaver) SaveDraft(ctx context.Context, company, jobTitle, letterText string) error {
	var remoteErr error
	if f.remote != nil {
		remoteErr = f.remote.SaveDraft(ctx, company, jobTitle, letterText)
		if remoteErr == nil {
			return nil
		}
		f.log.Warn("Draft API unavailable, archiving locally", zap.Error(remoteErr))
	}

	if f.local != nil {
		if err := f.local.SaveDraft(ctx, company, jobTitle, letterText); err != nil {
			if remoteErr != nil {
				return fmt.Errorf("draft api failed (%v); local archive failed: %w", remoteErr, err)
			}
			return err
		}
		return nil
	}

	if remoteErr != nil {
		return remoteErr
	}
	return fmt.Errorf("no draft storage configured")
}
