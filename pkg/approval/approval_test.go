package approval

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ordermesh/hub/internal/store"
)

func testEngine() *Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(nil, nil, nil, logger)
}

func TestAdmit_FrozenFlagRejectsImmediately(t *testing.T) {
	e := testEngine()
	b := store.Budget{ID: uuid.New(), IsFrozen: true, Current: 0, Limit: 100}
	if err := e.Admit(b); !errors.Is(err, store.ErrBudgetFrozen) {
		t.Fatalf("Admit() = %v, want ErrBudgetFrozen", err)
	}
}

func TestAdmit_UnderLimitAllowed(t *testing.T) {
	e := testEngine()
	b := store.Budget{ID: uuid.New(), Current: 5, Limit: 100}
	if err := e.Admit(b); err != nil {
		t.Fatalf("Admit() = %v, want nil", err)
	}
}

func TestAdmit_AtLimitTripsBreakerAndRejects(t *testing.T) {
	e := testEngine()
	b := store.Budget{ID: uuid.New(), Current: 100, Limit: 100}
	if err := e.Admit(b); !errors.Is(err, store.ErrBudgetFrozen) {
		t.Fatalf("first Admit() = %v, want ErrBudgetFrozen", err)
	}
}

func TestAdmit_SubsequentCallShortCircuitsViaOpenBreaker(t *testing.T) {
	e := testEngine()
	id := uuid.New()
	b := store.Budget{ID: id, Current: 100, Limit: 100}

	if err := e.Admit(b); !errors.Is(err, store.ErrBudgetFrozen) {
		t.Fatalf("first Admit() = %v, want ErrBudgetFrozen", err)
	}

	// Even if a caller now (incorrectly) passes an unfrozen/under-limit
	// snapshot, the breaker opened by the prior breach short-circuits it.
	fresh := store.Budget{ID: id, Current: 1, Limit: 100}
	if err := e.Admit(fresh); !errors.Is(err, store.ErrBudgetFrozen) {
		t.Fatalf("second Admit() = %v, want ErrBudgetFrozen via open breaker", err)
	}
}

func TestResetBreaker_AllowsFreshAdmitAfterwards(t *testing.T) {
	e := testEngine()
	id := uuid.New()
	b := store.Budget{ID: id, Current: 100, Limit: 100}

	if err := e.Admit(b); !errors.Is(err, store.ErrBudgetFrozen) {
		t.Fatalf("Admit() = %v, want ErrBudgetFrozen", err)
	}

	e.resetBreaker(id)

	fresh := store.Budget{ID: id, Current: 1, Limit: 100}
	if err := e.Admit(fresh); err != nil {
		t.Fatalf("Admit() after reset = %v, want nil", err)
	}
}

func TestNextBoundary_DailyAdvancesPastNow(t *testing.T) {
	stale := time.Now().Add(-72 * time.Hour)
	next := nextBoundary(stale, store.BudgetPeriodDaily)
	if !next.After(time.Now()) {
		t.Fatalf("nextBoundary() = %v, want a time after now", next)
	}
}

func TestNextBoundary_WeeklyStep(t *testing.T) {
	from := time.Now().Add(-time.Hour)
	next := nextBoundary(from, store.BudgetPeriodWeekly)
	if diff := next.Sub(from); diff < 6*24*time.Hour {
		t.Fatalf("nextBoundary() stepped %v, want at least one weekly step", diff)
	}
}

func TestNextBoundary_UnknownPeriodDefaultsToDailyStep(t *testing.T) {
	from := time.Now().Add(-time.Hour)
	next := nextBoundary(from, "quarterly")
	if diff := next.Sub(from); diff < 23*time.Hour || diff > 25*time.Hour {
		t.Fatalf("nextBoundary() stepped %v, want roughly one day for an unknown period", diff)
	}
}
