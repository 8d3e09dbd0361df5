package jobengine

import (
	"errors"
	"testing"
	"time"

	"github.com/ordermesh/hub/internal/store"
	"github.com/ordermesh/hub/pkg/gateway"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want outcome
	}{
		{"nil is success", nil, outcomeSuccess},
		{"conflict is conflict", store.ErrConflict, outcomeConflict},
		{"invalid is permanent", store.ErrInvalid, outcomePermanent},
		{"unauthorized is permanent", store.ErrUnauthorized, outcomePermanent},
		{"not found is permanent", store.ErrNotFound, outcomePermanent},
		{"budget frozen is permanent", store.ErrBudgetFrozen, outcomePermanent},
		{"unrecognized error is transient", errors.New("connection reset"), outcomeTransient},
		{"wrapped invalid is still permanent", &wrappedErr{store.ErrInvalid}, outcomePermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := classify(tt.err)
			if got != tt.want {
				t.Errorf("classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassify_RateLimitedCarriesRetryAfter(t *testing.T) {
	err := &RateLimitedError{RetryAfter: 45 * time.Second}
	out, retryAfter := classify(err)
	if out != outcomeRateLimited {
		t.Errorf("outcome = %v, want outcomeRateLimited", out)
	}
	if retryAfter != 45*time.Second {
		t.Errorf("retryAfter = %v, want 45s", retryAfter)
	}
}

func TestClassify_GatewayRateLimitedCarriesRetryAfter(t *testing.T) {
	err := &gateway.RateLimitedError{RetryAfter: 30 * time.Second}
	out, retryAfter := classify(err)
	if out != outcomeRateLimited {
		t.Errorf("outcome = %v, want outcomeRateLimited", out)
	}
	if retryAfter != 30*time.Second {
		t.Errorf("retryAfter = %v, want 30s", retryAfter)
	}
}

func TestClassify_WrappedGatewayRateLimitedStillClassifiesAsRateLimited(t *testing.T) {
	err := &wrappedErr{&gateway.RateLimitedError{RetryAfter: 5 * time.Second}}
	out, retryAfter := classify(err)
	if out != outcomeRateLimited {
		t.Errorf("outcome = %v, want outcomeRateLimited", out)
	}
	if retryAfter != 5*time.Second {
		t.Errorf("retryAfter = %v, want 5s", retryAfter)
	}
}

type wrappedErr struct{ inner error }

func (w *wrappedErr) Error() string { return "wrapped: " + w.inner.Error() }
func (w *wrappedErr) Unwrap() error { return w.inner }
