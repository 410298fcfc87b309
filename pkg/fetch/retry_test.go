package fetch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

var testLogger = zerolog.Nop()

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:       attempts,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", config.MaxAttempts)
	}
	if config.InitialBackoff != 1*time.Second {
		t.Errorf("InitialBackoff = %v, want 1s", config.InitialBackoff)
	}
	if config.MaxBackoff != 10*time.Second {
		t.Errorf("MaxBackoff = %v, want 10s", config.MaxBackoff)
	}
	if config.BackoffMultiplier != 2.0 {
		t.Errorf("BackoffMultiplier = %v, want 2.0", config.BackoffMultiplier)
	}
}

func TestRetryConfig_WithDefaults(t *testing.T) {
	got := RetryConfig{MaxBackoff: time.Millisecond}.withDefaults()
	if got.MaxAttempts != 3 || got.InitialBackoff != time.Second || got.BackoffMultiplier != 2.0 {
		t.Errorf("withDefaults() = %+v", got)
	}
	if got.MaxBackoff != got.InitialBackoff {
		t.Errorf("MaxBackoff = %v, want raised to InitialBackoff", got.MaxBackoff)
	}
}

func TestRetryWithBackoff(t *testing.T) {
	serverErr := &NetworkError{Class: ErrorClassServer, StatusCode: 500}
	clientErr := &NetworkError{Class: ErrorClassClient, StatusCode: 404}

	tests := []struct {
		name         string
		failures     int
		err          error
		wantAttempts int
		wantOK       bool
		wantErr      error
	}{
		{"success first try", 0, nil, 1, true, nil},
		{"success after server errors", 2, serverErr, 3, true, nil},
		{"server errors exhaust attempts", 5, serverErr, 3, false, ErrRetryExhausted},
		{"client error is not retried", 5, clientErr, 1, false, clientErr},
		{"plain error is not retried", 5, errors.New("boom"), 1, false, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := 0
			err := retryWithBackoff(context.Background(), fastRetry(3), testLogger, nil, func() error {
				attempts++
				if attempts <= tt.failures {
					return tt.err
				}
				return nil
			})

			if attempts != tt.wantAttempts {
				t.Errorf("attempts = %d, want %d", attempts, tt.wantAttempts)
			}
			switch {
			case tt.wantOK:
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
			default:
				if err == nil {
					t.Error("expected an error")
				}
			}
		})
	}
}

func TestRetryWithBackoff_ExhaustedKeepsCause(t *testing.T) {
	err := retryWithBackoff(context.Background(), fastRetry(2), testLogger, nil, func() error {
		return &NetworkError{Class: ErrorClassServer, StatusCode: 503}
	})

	var ne *NetworkError
	if !errors.As(err, &ne) || ne.StatusCode != 503 {
		t.Fatalf("errors.As(*NetworkError) failed for %v", err)
	}
	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("error = %v, want ErrRetryExhausted", err)
	}
}

func TestRetryWithBackoff_AllowRefusesRetry(t *testing.T) {
	attempts, checks := 0, 0
	allow := func() (bool, time.Duration) {
		checks++
		return checks < 2, time.Minute
	}

	err := retryWithBackoff(context.Background(), fastRetry(5), testLogger, allow, func() error {
		attempts++
		return &NetworkError{Class: ErrorClassServer, StatusCode: 503}
	})

	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
	if !errors.Is(err, ErrCooldown) || errors.Is(err, ErrRetryExhausted) {
		t.Errorf("error = %v, want ErrCooldown", err)
	}
	if ClassOf(err) != ErrorClassServer {
		t.Errorf("ClassOf() = %s, want server", ClassOf(err))
	}
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxAttempts: 3, InitialBackoff: time.Hour, MaxBackoff: time.Hour, BackoffMultiplier: 2}

	attempts := 0
	done := make(chan error, 1)
	go func() {
		done <- retryWithBackoff(ctx, cfg, testLogger, nil, func() error {
			attempts++
			return &NetworkError{Class: ErrorClassNetwork}
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, ErrContextCancelled) || !errors.Is(err, context.Canceled) {
			t.Errorf("error = %v, want ErrContextCancelled wrapping context.Canceled", err)
		}
		if attempts != 1 {
			t.Errorf("attempts = %d, want 1", attempts)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("retryWithBackoff did not return after cancel")
	}
}

func TestRetryConfig_Backoff(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts:       5,
		InitialBackoff:    time.Second,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2,
	}

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for i, w := range want {
		if got := cfg.backoff(i + 1); got != w {
			t.Errorf("backoff(%d) = %s, want %s", i+1, got, w)
		}
	}
}

func TestWithJitter(t *testing.T) {
	base := 10 * time.Second
	for i := 0; i < 200; i++ {
		got := withJitter(base)
		if got < 8*time.Second || got > 12*time.Second {
			t.Fatalf("withJitter(%s) = %s, outside ±20%%", base, got)
		}
	}
}
