package transaction

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/conduit-lang/contentschema/internal/orm/store"
)

const (
	// DefaultMaxRetries is the default number of attempts
	DefaultMaxRetries = 3
	// DefaultBaseBackoff is the backoff before the first retry
	DefaultBaseBackoff = 100 * time.Millisecond
)

// RetryConfig configures retry behavior for transactions
type RetryConfig struct {
	MaxRetries  int
	BaseBackoff time.Duration
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:  DefaultMaxRetries,
		BaseBackoff: DefaultBaseBackoff,
	}
}

// WithRetry runs fn in a transaction, repeating it with exponential backoff
// while it fails with a retryable error
func (m *Manager) WithRetry(ctx context.Context, fn func(tx *Transaction) error) error {
	return m.WithRetryConfig(ctx, DefaultRetryConfig(), fn)
}

// WithRetryConfig is WithRetry with a custom configuration
func (m *Manager) WithRetryConfig(ctx context.Context, config RetryConfig, fn func(tx *Transaction) error) error {
	var lastErr error

	for attempt := 0; attempt < config.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return fmt.Errorf("transaction cancelled before attempt %d: %w", attempt+1, ctx.Err())
		}

		err := m.WithTransaction(ctx, fn)
		if err == nil {
			return nil
		}
		if !IsRetryableError(err) {
			return err
		}

		lastErr = err
		backoff := config.BaseBackoff * time.Duration(1<<uint(attempt))
		m.logger.Debug("retrying transaction",
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return fmt.Errorf("transaction cancelled during retry: %w", ctx.Err())
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("%w: transaction failed after %d attempts: %v", ErrDeadlock, config.MaxRetries, lastErr)
}

var retryableMessages = []string{
	"deadlock detected",
	"deadlock found",
	"lock wait timeout exceeded",
	"could not serialize access",
	"database is locked",
}

// IsRetryableError reports whether repeating a failed transaction may
// succeed: deadlocks, serialization failures and busy SQLite databases
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if store.IsRetryable(err) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, m := range retryableMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
