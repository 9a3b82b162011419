package privmsg

import (
	"testing"
	"time"
)

func TestLimiterPool(t *testing.T) {
	t.Run("nil pool allows everything", func(t *testing.T) {
		var p *limiterPool
		if newLimiterPool(0, 5) != nil {
			t.Error("expected nil pool for zero rate")
		}
		for i := 0; i < 100; i++ {
			if !p.allow("alice") {
				t.Fatal("nil pool must allow")
			}
		}
	})

	t.Run("burst then refill", func(t *testing.T) {
		now := time.Unix(1700000000, 0)
		p := newLimiterPool(1, 2)
		p.now = func() time.Time { return now }

		if !p.allow("alice") || !p.allow("alice") {
			t.Fatal("expected burst of 2")
		}
		if p.allow("alice") {
			t.Fatal("expected third send to be limited")
		}
		if !p.allow("bob") {
			t.Error("senders must not share a bucket")
		}

		now = now.Add(time.Second)
		if !p.allow("alice") {
			t.Error("expected a token after one second")
		}
	})

	t.Run("idle buckets are swept", func(t *testing.T) {
		now := time.Unix(1700000000, 0)
		p := newLimiterPool(1, 1)
		p.now = func() time.Time { return now }

		p.allow("alice")
		now = now.Add(limiterTTL + limiterSweepPeriod)
		p.allow("bob")

		p.mu.Lock()
		defer p.mu.Unlock()
		if _, ok := p.m["alice"]; ok {
			t.Error("expected idle bucket removed")
		}
		if _, ok := p.m["bob"]; !ok {
			t.Error("expected active bucket kept")
		}
	})
}
