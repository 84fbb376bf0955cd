package retry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	mssql "github.com/microsoft/go-mssqldb"

	"github.com/ekaya-inc/ekaya-pivot/pkg/apperrors"
)

func fastConfig() *Config {
	return &Config{
		MaxRetries:   3,
		InitialDelay: 5 * time.Millisecond,
		MaxDelay:     20 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.MaxRetries != 3 {
		t.Errorf("expected MaxRetries=3, got %d", cfg.MaxRetries)
	}
	if cfg.InitialDelay != 100*time.Millisecond {
		t.Errorf("expected InitialDelay=100ms, got %v", cfg.InitialDelay)
	}
	if cfg.MaxDelay != 5*time.Second {
		t.Errorf("expected MaxDelay=5s, got %v", cfg.MaxDelay)
	}
	if cfg.Multiplier != 2.0 {
		t.Errorf("expected Multiplier=2.0, got %f", cfg.Multiplier)
	}
}

func TestDo_SuccessAfterRetries(t *testing.T) {
	callCount := 0
	err := Do(context.Background(), fastConfig(), func() error {
		callCount++
		if callCount < 3 {
			return errors.New("temporary error")
		}
		return nil
	})

	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if callCount != 3 {
		t.Errorf("expected 3 calls, got %d", callCount)
	}
}

func TestDo_MaxRetriesExhausted(t *testing.T) {
	expectedErr := errors.New("persistent error")
	callCount := 0
	err := Do(context.Background(), fastConfig(), func() error {
		callCount++
		return expectedErr
	})

	if !errors.Is(err, expectedErr) {
		t.Errorf("expected %v, got %v", expectedErr, err)
	}
	if callCount != 4 {
		t.Errorf("expected 4 calls (1 initial + 3 retries), got %d", callCount)
	}
}

func TestDo_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := &Config{MaxRetries: 10, InitialDelay: 50 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2.0}

	callCount := 0
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := Do(ctx, cfg, func() error {
		callCount++
		return errors.New("error")
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if callCount > 2 {
		t.Errorf("expected at most 2 calls before cancellation, got %d", callCount)
	}
}

func TestDoWithResult_SuccessAfterRetries(t *testing.T) {
	callCount := 0
	result, err := DoWithResult(context.Background(), fastConfig(), func() (int, error) {
		callCount++
		if callCount < 2 {
			return 0, errors.New("connection refused")
		}
		return 42, nil
	})

	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if result != 42 {
		t.Errorf("expected result=42, got %d", result)
	}
}

func TestApplyJitter_StaysInBounds(t *testing.T) {
	base := 100 * time.Millisecond
	for i := 0; i < 100; i++ {
		d := applyJitter(base, 0.1)
		if d < 90*time.Millisecond || d > 110*time.Millisecond {
			t.Fatalf("jittered delay %v outside +/-10%% of %v", d, base)
		}
	}
	if d := applyJitter(base, 0); d != base {
		t.Errorf("expected no jitter with factor 0, got %v", d)
	}
}

type explicitErr struct{ retry bool }

func (e explicitErr) Error() string     { return "explicit" }
func (e explicitErr) IsRetryable() bool { return e.retry }

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"sqlite busy", errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{"deadlock sqlstate", &pgconn.PgError{Code: "40P01"}, true},
		{"connection exception class", &pgconn.PgError{Code: "08006"}, true},
		{"undefined column sqlstate", &pgconn.PgError{Code: "42703"}, false},
		{"mssql deadlock victim", fmt.Errorf("pivot: %w", mssql.Error{Number: 1205}), true},
		{"mssql duplicate column", mssql.Error{Number: 2705, Message: "Column names in each table must be unique"}, false},
		{"mssql overflow ignores text", mssql.Error{Number: 8115, Message: "timeout converting numeric"}, false},
		{"syntax error", errors.New("syntax error at or near \"FROM\""), false},
		{"context cancelled", fmt.Errorf("step: %w", context.Canceled), false},
		{"deadline exceeded", context.DeadlineExceeded, false},
		{"integrity fault", &apperrors.IntegrityError{Reason: "closure pass made no progress"}, false},
		{"precision fault wrapping timeout", &apperrors.PrecisionError{Column: "measurement_vol", Cause: errors.New("timeout")}, false},
		{"invalid category", &apperrors.CategoryError{Category: "a-b", Reason: "bad"}, false},
		{"explicit retryable", explicitErr{retry: true}, true},
		{"explicit permanent", explicitErr{retry: false}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestDoIfRetryable_RetryableError(t *testing.T) {
	callCount := 0
	err := DoIfRetryable(context.Background(), fastConfig(), func() error {
		callCount++
		if callCount < 3 {
			return errors.New("connection reset by peer")
		}
		return nil
	})

	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if callCount != 3 {
		t.Errorf("expected 3 calls, got %d", callCount)
	}
}

func TestDoIfRetryable_NonRetryableError(t *testing.T) {
	callCount := 0
	fault := &apperrors.IntegrityError{Reason: "closure pass limit reached", Passes: 10}
	err := DoIfRetryable(context.Background(), fastConfig(), func() error {
		callCount++
		return fault
	})

	if !errors.Is(err, apperrors.ErrDataIntegrity) {
		t.Errorf("expected integrity fault, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("expected 1 call (no retries for permanent error), got %d", callCount)
	}
}

func TestDoIfRetryable_RepeatedErrorEscalates(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxRetries = 10
	cfg.MaxSameErrorType = 3

	callCount := 0
	err := DoIfRetryable(context.Background(), cfg, func() error {
		callCount++
		return errors.New("database is locked")
	})

	if err == nil || !strings.Contains(err.Error(), "repeated error (3 times, type=locked)") {
		t.Errorf("expected repeated error escalation, got %v", err)
	}
	if callCount != 3 {
		t.Errorf("expected 3 calls before escalation, got %d", callCount)
	}
}

func TestDoIfRetryable_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := &Config{MaxRetries: 10, InitialDelay: 50 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2.0}

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := DoIfRetryable(ctx, cfg, func() error {
		return errors.New("timeout")
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestClassifyErrorType(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&pgconn.PgError{Code: "40P01"}, "sqlstate_40P01"},
		{mssql.Error{Number: 1205}, "mssql_1205"},
		{errors.New("read: connection reset by peer"), "connection"},
		{errors.New("database is locked"), "locked"},
		{errors.New("i/o timeout"), "timeout"},
		{errors.New("something else"), "unknown"},
	}
	for _, tt := range tests {
		if got := classifyErrorType(tt.err); got != tt.want {
			t.Errorf("classifyErrorType(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
