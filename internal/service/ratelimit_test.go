package service

import (
	"testing"
	"time"
)

func TestLimiterDisabled(t *testing.T) {
	l := NewLimiter(false, map[RateCategory]RateLimit{
		RateIssuance: {Limit: 1, Window: time.Hour},
	}, nil)

	for i := 0; i < 100; i++ {
		if !l.Allow(RateIssuance, "x@example.com") {
			t.Fatal("disabled limiter rejected a request")
		}
	}
}

func TestLimiterPerKeyWindows(t *testing.T) {
	clock := &testClock{t: time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)}
	l := NewLimiter(true, map[RateCategory]RateLimit{
		RateIssuance: {Limit: 2, Window: time.Minute},
	}, clock.now)

	if !l.Allow(RateIssuance, "a") || !l.Allow(RateIssuance, "a") {
		t.Fatal("budget rejected within limit")
	}
	if l.Allow(RateIssuance, "a") {
		t.Error("third request should be rejected")
	}
	if !l.Allow(RateIssuance, "b") {
		t.Error("separate key shares no budget")
	}

	clock.advance(61 * time.Second)
	if !l.Allow(RateIssuance, "a") {
		t.Error("window did not reset")
	}
}

func TestLimiterCategoriesIndependent(t *testing.T) {
	clock := &testClock{t: time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)}
	l := NewLimiter(true, map[RateCategory]RateLimit{
		RateIssuance: {Limit: 1, Window: time.Hour},
		RateConsume:  {Limit: 1, Window: time.Hour},
	}, clock.now)

	if !l.Allow(RateIssuance, "same-key") {
		t.Fatal("first issuance rejected")
	}
	if l.Allow(RateIssuance, "same-key") {
		t.Error("second issuance should be rejected")
	}
	// Same key, different category: untouched budget.
	if !l.Allow(RateConsume, "same-key") {
		t.Error("consume category shares issuance budget")
	}
	// Unknown category is always allowed.
	if !l.Allow(RateCategory("unknown"), "same-key") {
		t.Error("unknown category rejected")
	}
}
