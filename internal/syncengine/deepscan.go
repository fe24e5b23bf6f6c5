package syncengine

import (
	"context"
	"fmt"
)

// PrepareDeepScan increments the user's sync counter and reports
// whether this run should perform a full HC library reconciliation
// instead of relying on the matcher's already-built identifier index.
func (p *Pipeline) PrepareDeepScan(ctx context.Context, userID string, interval int) (bool, error) {
	if err := p.store.IncrementSyncCount(ctx, userID); err != nil {
		return false, err
	}
	return p.store.ShouldPerformDeepScan(ctx, userID, interval)
}

// RecordDeepScan resets the cadence counter after a deep scan completes.
func (p *Pipeline) RecordDeepScan(ctx context.Context, userID string) error {
	return p.store.RecordDeepScan(ctx, userID)
}

// ReconcileLibrary fetches the user's full Hardcover library and
// refreshes the matcher's identifier index, the deep-scan alternative to
// relying on cached identifiers.
func (p *Pipeline) ReconcileLibrary(ctx context.Context, userID string) error {
	entries, err := p.hc.GetUserLibrary(ctx, userID)
	if err != nil {
		return err
	}
	p.matcher.SetUserLibrary(entries)
	return nil
}

// EnsureIndexBuilt makes sure the matcher has some identifier index to
// work with on a run that isn't performing a deep scan: a no-op once an
// earlier deep scan in this process has already built one.
func (p *Pipeline) EnsureIndexBuilt() {
	p.matcher.EnsureBuilt(nil)
}

// RunDeepScanOrReuse gates the expensive full-library reconciliation
// behind the deep-scan cadence: on a due scan it reconciles against
// Hardcover and records the scan; otherwise it only makes sure the
// matcher's index exists, reusing whatever a prior deep scan already
// built in this process.
func (p *Pipeline) RunDeepScanOrReuse(ctx context.Context, userID string, interval int) error {
	due, err := p.PrepareDeepScan(ctx, userID, interval)
	if err != nil {
		return fmt.Errorf("checking deep scan cadence: %w", err)
	}
	if !due {
		p.EnsureIndexBuilt()
		return nil
	}
	if err := p.ReconcileLibrary(ctx, userID); err != nil {
		return fmt.Errorf("reconciling hardcover library: %w", err)
	}
	return p.RecordDeepScan(ctx, userID)
}
