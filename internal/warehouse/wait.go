package warehouse

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrStatementTimeout reports that a statement did not reach a terminal
// state within the configured deadline. It is distinct from a FAILED status
// and from context cancellation by the host environment.
var ErrStatementTimeout = errors.New("warehouse: statement execution timed out")

// WaitConfig bounds the completion poll: exponential backoff between polls
// and an overall deadline for the statement.
type WaitConfig struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Timeout        time.Duration
}

// DefaultWaitConfig returns the polling bounds used by the pipeline.
func DefaultWaitConfig() WaitConfig {
	return WaitConfig{
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Timeout:        2 * time.Minute,
	}
}

// Wait polls a submitted statement until it finishes, fails, or the deadline
// expires. A FAILED status is returned with a nil error; the caller decides
// how to report it. Context cancellation propagates as ctx.Err() so that the
// host environment's cutoff stays distinguishable from a logical timeout.
func Wait(ctx context.Context, exec Executor, statementID string, cfg WaitConfig) (StatementStatus, error) {
	deadline := time.Now().Add(cfg.Timeout)
	backoff := cfg.InitialBackoff

	for {
		status, err := exec.Poll(ctx, statementID)
		if err != nil {
			return StatementStatus{}, err
		}
		if status.State != StateRunning {
			return status, nil
		}

		if time.Now().After(deadline) {
			return status, fmt.Errorf("statement %s after %s: %w", statementID, cfg.Timeout, ErrStatementTimeout)
		}

		select {
		case <-ctx.Done():
			return status, ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}
}
