package transaction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
	msqlite "modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

const (
	// DefaultMaxRetries is the default number of attempts for a busy database
	DefaultMaxRetries = 3
	// DefaultBaseBackoff is the default base backoff duration
	DefaultBaseBackoff = 50 * time.Millisecond
)

// ErrBusy is returned when the database stays locked through every retry
var ErrBusy = errors.New("database is busy")

// RetryConfig configures retry behavior for transactions
type RetryConfig struct {
	MaxRetries  int
	BaseBackoff time.Duration
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:  DefaultMaxRetries,
		BaseBackoff: DefaultBaseBackoff,
	}
}

// WithRetry runs WithTransaction again while it fails because another
// connection holds the database lock
func (m *Manager) WithRetry(ctx context.Context, config *RetryConfig, fn func(ctx context.Context) error) error {
	if config == nil {
		config = DefaultRetryConfig()
	}
	var lastErr error

	for attempt := 0; attempt < config.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return fmt.Errorf("transaction cancelled before retry %d: %w", attempt, ctx.Err())
		}

		err := m.WithTransaction(ctx, fn)
		if err == nil {
			return nil
		}
		if !IsRetryableError(err) {
			return err
		}
		lastErr = err

		// exponential backoff: baseBackoff * 2^attempt
		backoff := config.BaseBackoff * time.Duration(1<<uint(attempt))
		m.logger.Debug("database busy, retrying", zap.Int("attempt", attempt+1), zap.Duration("backoff", backoff))
		select {
		case <-ctx.Done():
			return fmt.Errorf("transaction cancelled during retry: %w", ctx.Err())
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("%w: transaction failed after %d attempts: %v", ErrBusy, config.MaxRetries, lastErr)
}

// IsRetryableError reports whether err means the database was locked by
// another connection
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var cgoErr sqlite3.Error
	if errors.As(err, &cgoErr) {
		return cgoErr.Code == sqlite3.ErrBusy || cgoErr.Code == sqlite3.ErrLocked
	}

	var pureErr *msqlite.Error
	if errors.As(err, &pureErr) {
		code := pureErr.Code() & 0xff
		return code == sqlitelib.SQLITE_BUSY || code == sqlitelib.SQLITE_LOCKED
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked")
}
