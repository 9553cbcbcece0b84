package app

import (
	"context"
	"log/slog"
	"time"

	"librarian/pkg/domain"
	"librarian/pkg/queue"
	"librarian/pkg/store"
)

const sweepLockTTL = 5 * time.Minute

// RunOverdueSweep marks past-due active loans overdue and issues one fine per
// newly overdue loan. The sweep is idempotent: loans already marked stay
// untouched and never get a second fine. With Redis configured a short lock
// keeps concurrent replicas from sweeping at the same time.
func (a *App) RunOverdueSweep(ctx context.Context, asOf time.Time) ([]domain.Fine, error) {
	if a.sweepRedis != nil {
		ok, err := a.sweepRedis.SetNX(ctx, sweepLockKey, "1", sweepLockTTL).Result()
		if err != nil {
			slog.Warn("sweep lock unavailable, sweeping anyway", "err", err)
		} else if !ok {
			slog.Info("overdue sweep skipped, another replica holds the lock")
			return nil, nil
		} else {
			defer a.sweepRedis.Del(context.WithoutCancel(ctx), sweepLockKey)
		}
	}
	fines, err := a.store.SweepOverdue(asOf, a.finePolicy)
	if err != nil {
		return nil, err
	}
	for _, fine := range fines {
		ev := queue.Event{
			Type:        queue.EventFineIssued,
			FineID:      fine.ID,
			MemberID:    fine.MemberID,
			AmountCents: fine.AmountCents,
			OccurredAt:  time.Now(),
		}
		if fine.LoanID != nil {
			ev.LoanID = *fine.LoanID
		}
		a.publish(ctx, ev)
		a.publish(ctx, queue.Event{
			Type:       queue.EventLoanOverdue,
			LoanID:     ev.LoanID,
			MemberID:   fine.MemberID,
			OccurredAt: time.Now(),
		})
	}
	if len(fines) > 0 {
		slog.Info("overdue sweep issued fines", "count", len(fines))
	}
	return fines, nil
}

// GetFine loads one fine.
func (a *App) GetFine(id string) (domain.Fine, error) {
	fine, ok, err := a.store.GetFine(id)
	if err != nil {
		return domain.Fine{}, err
	}
	if !ok {
		return domain.Fine{}, domain.ErrFineNotFound
	}
	return fine, nil
}

// ListFines pages through fines with optional filters.
func (a *App) ListFines(f store.FineFilter) ([]domain.Fine, int64, error) {
	f.Page = f.Page.Normalize()
	return a.store.ListFines(f)
}

// PayFine records a payment against a fine. Payments must be positive and may
// not exceed the outstanding balance.
func (a *App) PayFine(id string, amountCents int64) (domain.Fine, error) {
	if amountCents <= 0 {
		return domain.Fine{}, invalid("payment amount must be positive")
	}
	return a.store.RecordFinePayment(id, amountCents)
}

// Reconcile recomputes available copies from open loans and reports every
// book whose cached value drifted.
func (a *App) Reconcile() ([]store.Drift, error) {
	return a.store.ReconcileAvailability()
}

// Stats returns dashboard aggregates.
func (a *App) Stats() (domain.Stats, error) {
	return a.store.Stats()
}
