// Package store persists submissions and feedback, and runs the multi-step write transactions
// of the service with bounded retries on transient storage failures.
package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/dailyink/metrics"
	"github.com/cppla/dailyink/models"
)

// Transactor runs a function inside a database transaction, retrying transient failures.
type Transactor struct {
	db       *gorm.DB
	attempts int
	log      *zap.Logger
}

// NewTransactor returns a Transactor making at most attempts tries per call.
func NewTransactor(db *gorm.DB, attempts int, log *zap.Logger) *Transactor {
	if attempts <= 0 {
		attempts = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Transactor{db: db, attempts: attempts, log: log}
}

// DB returns the underlying handle for read-only queries.
func (t *Transactor) DB() *gorm.DB {
	return t.db
}

// Run executes fn in a transaction. The whole transaction either commits or rolls back; fn may run
// more than once, so it must not have effects outside tx. Business outcomes stop retries immediately.
// Transient failures that outlast the retry budget are returned as models.ErrStorageUnavailable.
func (t *Transactor) Run(ctx context.Context, op string, fn func(tx *gorm.DB) error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 20 * time.Millisecond
	policy.MaxInterval = 500 * time.Millisecond

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := t.db.WithContext(ctx).Transaction(fn)
		if err == nil {
			return nil
		}
		if IsTransient(err) && ctx.Err() == nil {
			metrics.StorageRetries.WithLabelValues(op).Inc()
			t.log.Warn("transient storage failure, retrying",
				zap.String("op", op), zap.Int("attempt", attempt), zap.Error(err))
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(t.attempts-1)), ctx))

	if err == nil || models.IsBusinessOutcome(err) {
		return err
	}
	if IsTransient(err) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %v", op, models.ErrStorageUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsDuplicate reports whether err is a unique constraint violation.
func IsDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate entry") ||
		strings.Contains(msg, "duplicate key")
}

// IsTransient reports whether err is a lock conflict, serialization failure or dropped connection
// that is worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"deadlock",                 // mysql 1213, postgres 40p01
		"lock wait timeout",        // mysql 1205
		"could not serialize",      // postgres 40001
		"sqlstate 40001",           // postgres serialization_failure
		"database is locked",       // sqlite busy
		"database table is locked", // sqlite locked
		"bad connection",
		"connection reset",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
