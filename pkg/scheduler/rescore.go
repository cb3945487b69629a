package scheduler

import (
	"context"
	"time"

	"github.com/go-pkgz/lgr"
)

// rescoreWorker scores items left pending_scoring. It runs on its own interval and on
// triggers, with a debounce timer batching rapid triggers.
func (s *Scheduler) rescoreWorker(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.rescoreInterval)
	defer ticker.Stop()

	debounceTimer := time.NewTimer(0)
	if !debounceTimer.Stop() {
		<-debounceTimer.C
	}

	for {
		select {
		case <-ctx.Done():
			debounceTimer.Stop()
			return
		case <-s.rescoreCh:
			// reset debounce timer
			debounceTimer.Stop()
			debounceTimer.Reset(s.rescoreDebounce)
		case <-debounceTimer.C:
			lgr.Printf("[DEBUG] processing triggered rescore")
			s.rescore(ctx)
		case <-ticker.C:
			s.rescore(ctx)
		}
	}
}

func (s *Scheduler) rescore(ctx context.Context) {
	if _, err := s.coordinator.RescorePending(ctx, s.rescoreBatch, s.now()); err != nil {
		lgr.Printf("[WARN] failed to rescore pending items: %v", err)
	}
}
