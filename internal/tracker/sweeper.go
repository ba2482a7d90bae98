package tracker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// RunSweeper periodically evicts stale entries until ctx is done. maxAge is
// asked on every run so configuration changes apply without a restart.
func RunSweeper(
	ctx context.Context,
	store *Store,
	interval time.Duration,
	maxAge func() time.Duration,
	log *logrus.Logger,
) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("stopping tracker sweeper")
			return
		case now := <-ticker.C:
			removed := store.Sweep(now, maxAge())
			log.WithFields(logrus.Fields{
				"removed":   removed,
				"remaining": store.Len(),
			}).Debug("tracker sweep completed")
		}
	}
}
