package dhcpv4

import (
	"testing"

	"golang.org/x/time/rate"
)

func TestDiscoverLimiterPerMAC(t *testing.T) {
	l := NewDiscoverLimiter(rate.Limit(1), 1)
	macA := [6]byte{1}
	macB := [6]byte{2}

	if !l.Allow(macA) {
		t.Fatal("first DISCOVER for a fresh MAC should be allowed")
	}
	if l.Allow(macA) {
		t.Error("a second immediate DISCOVER for the same MAC should be throttled")
	}
	if !l.Allow(macB) {
		t.Error("a different MAC should have its own independent budget")
	}
}
