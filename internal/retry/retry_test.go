package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

func newTestRetrier(policy Policy) (*Retrier, *[]time.Duration) {
	var waits []time.Duration
	r := New(policy, zap.NewNop())
	r.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return ctx.Err()
	}
	return r, &waits
}

func TestDo_RetriesRateLimits(t *testing.T) {
	r, waits := newTestRetrier(DefaultPolicy())

	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return genai.APIError{Code: 429, Message: "quota"}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}

	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(*waits) != len(want) {
		t.Fatalf("Expected waits %v, got %v", want, *waits)
	}
	for i := range want {
		if (*waits)[i] != want[i] {
			t.Errorf("wait[%d]: expected %v, got %v", i, want[i], (*waits)[i])
		}
	}
}

func TestDo_GivesUpAfterMaxAttempts(t *testing.T) {
	r, _ := newTestRetrier(DefaultPolicy())

	calls := 0
	overload := &StatusError{Code: 503, Err: errors.New("overloaded")}
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return overload
	})
	if !errors.Is(err, overload) {
		t.Fatalf("Expected last error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
}

func TestDo_NonRetryableFailsFast(t *testing.T) {
	r, waits := newTestRetrier(DefaultPolicy())

	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return genai.APIError{Code: 400, Message: "bad request"}
	})
	if err == nil {
		t.Fatal("Expected error")
	}
	if calls != 1 || len(*waits) != 0 {
		t.Errorf("Expected a single call without waiting, got %d calls, %d waits", calls, len(*waits))
	}
}

func TestDo_ContextCancelled(t *testing.T) {
	r, _ := newTestRetrier(DefaultPolicy())
	ctx, cancel := context.WithCancel(context.Background())

	err := r.Do(ctx, func(ctx context.Context) error {
		cancel()
		return &StatusError{Code: 429, Err: errors.New("slow down")}
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestDo_MaxDelayCaps(t *testing.T) {
	r, waits := newTestRetrier(Policy{
		MaxAttempts: 4,
		BaseDelay:   time.Second,
		Multiplier:  10,
		MaxDelay:    5 * time.Second,
	})

	_ = r.Do(context.Background(), func(ctx context.Context) error {
		return errors.New("HTTP 429 Too Many Requests")
	})

	want := []time.Duration{time.Second, 5 * time.Second, 5 * time.Second}
	if len(*waits) != len(want) {
		t.Fatalf("Expected waits %v, got %v", want, *waits)
	}
	for i := range want {
		if (*waits)[i] != want[i] {
			t.Errorf("wait[%d]: expected %v, got %v", i, want[i], (*waits)[i])
		}
	}
}

func TestIsRateLimitOrOverload(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"api 429", genai.APIError{Code: 429}, true},
		{"api 503 pointer", &genai.APIError{Code: 503}, true},
		{"api 500", genai.APIError{Code: 500}, false},
		{"wrapped status", fmt.Errorf("call: %w", &StatusError{Code: 503, Err: errors.New("x")}), true},
		{"message", errors.New("got 429 from upstream"), true},
		{"plain", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRateLimitOrOverload(tt.err); got != tt.want {
				t.Errorf("IsRateLimitOrOverload(%v) = %v, expected %v", tt.err, got, tt.want)
			}
		})
	}
}
