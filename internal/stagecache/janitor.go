package stagecache

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Purger is implemented by stores that do not expire entries on their own
type Purger interface {
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// RunJanitor purges entries older than retention every interval until ctx
// is done. Entries past every stage TTL are never served, so retention only
// bounds storage growth.
func RunJanitor(ctx context.Context, p Purger, interval, retention time.Duration, log *logrus.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purgeOnce(ctx, p, time.Now().Add(-retention), log)
		}
	}
}

func purgeOnce(ctx context.Context, p Purger, cutoff time.Time, log *logrus.Logger) {
	n, err := p.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		log.WithError(err).Warn("Failed to purge stale cache entries")
		return
	}
	if n > 0 {
		log.WithField("purged", n).Info("Purged stale cache entries")
	}
}
