package jobstore

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Sweeper re-evaluates retention on a schedule so a long-lived daemon does
// not keep serving a collection that expired between loads.
type Sweeper struct {
	cron  *cron.Cron
	store *Store
	spec  string
	log   *zap.Logger
}

// NewSweeper creates a sweeper firing every intervalHours hours.
func NewSweeper(store *Store, intervalHours int, log *zap.Logger) *Sweeper {
	if intervalHours <= 0 {
		intervalHours = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Sweeper{
		cron:  cron.New(),
		store: store,
		spec:  fmt.Sprintf("@every %dh", intervalHours),
		log:   log,
	}
}

func (s *Sweeper) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		if s.store.ExpireStale(ctx) {
			s.log.Info("Retention sweep expired stored jobs")
		}
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}
	s.cron.Start()
	s.log.Debug("Retention sweeper started", zap.String("spec", s.spec))
	return nil
}

func (s *Sweeper) Stop() {
	s.cron.Stop()
}
