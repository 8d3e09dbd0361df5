package jobengine

import (
	"fmt"
	"time"

	"github.com/ordermesh/hub/internal/config"
)

// Config is the Job Engine's runtime configuration, parsed from the
// string/duration fields of the application config.
type Config struct {
	BatchSize       int
	LeaseTTL        time.Duration
	HandlerTimeout  time.Duration
	WorkerCount     int
	PollInterval    time.Duration
	RetryBaseDelay  time.Duration
	RetryMaxDelay   time.Duration
	RetryJitterFrac float64
}

// handlerTimeoutBuffer is the gap spec.md §5 carves out between the lease
// TTL and the handler timeout (lease 5m, handler 4m30s) so a handler is
// always cancelled before another worker becomes entitled to reclaim its
// lease, never at the exact same instant.
const handlerTimeoutBuffer = 30 * time.Second

// NewConfig parses the Job Engine fields out of the application config.
func NewConfig(cfg *config.Config) (Config, error) {
	leaseTTL, err := time.ParseDuration(cfg.JobLeaseTTL)
	if err != nil {
		return Config{}, fmt.Errorf("parsing JOB_LEASE_TTL: %w", err)
	}
	pollInterval, err := time.ParseDuration(cfg.JobPollInterval)
	if err != nil {
		return Config{}, fmt.Errorf("parsing JOB_POLL_INTERVAL: %w", err)
	}
	baseDelay, err := time.ParseDuration(cfg.JobRetryBaseDelay)
	if err != nil {
		return Config{}, fmt.Errorf("parsing JOB_RETRY_BASE_DELAY: %w", err)
	}
	maxDelay, err := time.ParseDuration(cfg.JobRetryMaxDelay)
	if err != nil {
		return Config{}, fmt.Errorf("parsing JOB_RETRY_MAX_DELAY: %w", err)
	}

	handlerTimeout := leaseTTL - handlerTimeoutBuffer
	if handlerTimeout <= 0 {
		handlerTimeout = leaseTTL
	}

	return Config{
		BatchSize:       cfg.JobBatchSize,
		LeaseTTL:        leaseTTL,
		HandlerTimeout:  handlerTimeout,
		WorkerCount:     cfg.JobWorkerCount,
		PollInterval:    pollInterval,
		RetryBaseDelay:  baseDelay,
		RetryMaxDelay:   maxDelay,
		RetryJitterFrac: cfg.JobRetryJitterFrac,
	}, nil
}
