package store_test

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/dailyink/dbtest"
	"github.com/cppla/dailyink/models"
	"github.com/cppla/dailyink/store"
)

func TestRunRetriesTransientFailures(t *testing.T) {
	txr := store.NewTransactor(dbtest.Open(t), 3, zap.NewNop())

	calls := 0
	err := txr.Run(context.Background(), "test.flaky", func(tx *gorm.DB) error {
		calls++
		if calls < 3 {
			return errors.New("Error 1213: Deadlock found when trying to get lock")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRunGivesUpAsStorageUnavailable(t *testing.T) {
	txr := store.NewTransactor(dbtest.Open(t), 2, zap.NewNop())

	calls := 0
	err := txr.Run(context.Background(), "test.down", func(tx *gorm.DB) error {
		calls++
		return driver.ErrBadConn
	})
	assert.ErrorIs(t, err, models.ErrStorageUnavailable)
	assert.Equal(t, 2, calls)
}

func TestRunDoesNotRetryBusinessOutcomes(t *testing.T) {
	txr := store.NewTransactor(dbtest.Open(t), 5, zap.NewNop())

	calls := 0
	err := txr.Run(context.Background(), "test.exhausted", func(tx *gorm.DB) error {
		calls++
		return models.ErrQuotaExhausted
	})
	assert.Same(t, models.ErrQuotaExhausted, err)
	assert.Equal(t, 1, calls)
}

func TestClassifyStorageErrors(t *testing.T) {
	tests := []struct {
		err       error
		duplicate bool
		transient bool
	}{
		{gorm.ErrDuplicatedKey, true, false},
		{errors.New("UNIQUE constraint failed: submissions.user_id"), true, false},
		{errors.New("Error 1062: Duplicate entry 'x' for key 'idx'"), true, false},
		{errors.New(`ERROR: duplicate key value violates unique constraint "idx" (SQLSTATE 23505)`), true, false},
		{errors.New("Error 1205: Lock wait timeout exceeded"), false, true},
		{errors.New("ERROR: could not serialize access (SQLSTATE 40001)"), false, true},
		{errors.New("database is locked (5) (SQLITE_BUSY)"), false, true},
		{fmt.Errorf("wrapped: %w", driver.ErrBadConn), false, true},
		{errors.New("syntax error"), false, false},
		{nil, false, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.duplicate, store.IsDuplicate(tt.err), "IsDuplicate(%v)", tt.err)
		assert.Equal(t, tt.transient, store.IsTransient(tt.err), "IsTransient(%v)", tt.err)
	}
}
