package dhcpv4

import (
	"testing"
	"time"
)

func TestLeaseTablePoolContainment(t *testing.T) {
	lt := NewLeaseTable(4, mustAddr("10.0.0.10"), mustAddr("10.0.0.13"))
	mac := [6]byte{1, 1, 1, 1, 1, 1}
	if lt.AddLease(mac, mustAddr("10.0.0.9"), time.Now().Add(time.Hour)) {
		t.Error("AddLease accepted an address below the pool range")
	}
	if lt.AddLease(mac, mustAddr("10.0.0.14"), time.Now().Add(time.Hour)) {
		t.Error("AddLease accepted an address above the pool range")
	}
	if lt.Len() != 0 {
		t.Errorf("want 0 leases after rejected adds, got %d", lt.Len())
	}
}

func TestLeaseTableSingleLeasePerMAC(t *testing.T) {
	lt := NewLeaseTable(4, mustAddr("10.0.0.10"), mustAddr("10.0.0.13"))
	mac := [6]byte{2, 2, 2, 2, 2, 2}
	now := time.Now()
	if !lt.AddLease(mac, mustAddr("10.0.0.10"), now.Add(time.Hour)) {
		t.Fatal("first AddLease should succeed")
	}
	if !lt.AddLease(mac, mustAddr("10.0.0.11"), now.Add(time.Hour)) {
		t.Fatal("second AddLease for the same MAC should succeed by replacing the first")
	}
	if lt.Len() != 1 {
		t.Fatalf("want exactly one lease bound to the MAC, got %d", lt.Len())
	}
	ip, ok := lt.LeaseFor(mac)
	if !ok || ip != mustAddr("10.0.0.11") {
		t.Errorf("want lease rebound to 10.0.0.11, got ok=%v ip=%s", ok, ip)
	}
}

func TestLeaseTableCapacityFull(t *testing.T) {
	lt := NewLeaseTable(2, mustAddr("10.0.0.10"), mustAddr("10.0.0.13"))
	now := time.Now()
	macA := [6]byte{1}
	macB := [6]byte{2}
	macC := [6]byte{3}
	if !lt.AddLease(macA, mustAddr("10.0.0.10"), now.Add(time.Hour)) {
		t.Fatal("setup: first lease should succeed")
	}
	if !lt.AddLease(macB, mustAddr("10.0.0.11"), now.Add(time.Hour)) {
		t.Fatal("setup: second lease should succeed")
	}
	if lt.AddLease(macC, mustAddr("10.0.0.12"), now.Add(time.Hour)) {
		t.Error("AddLease should fail once the table is at capacity")
	}
	if lt.Len() != 2 {
		t.Errorf("want 2 leases after the rejected add, got %d", lt.Len())
	}
}

func TestLeaseTableExpiredEntryReclaimed(t *testing.T) {
	lt := NewLeaseTable(1, mustAddr("10.0.0.10"), mustAddr("10.0.0.10"))
	macA := [6]byte{1}
	macB := [6]byte{2}
	now := time.Now()
	if !lt.AddLease(macA, mustAddr("10.0.0.10"), now.Add(-time.Minute)) {
		t.Fatal("setup: expired lease should still be addable")
	}

	if !lt.IsAvailable(macB, mustAddr("10.0.0.10"), now) {
		t.Error("an expired lease should be available to a different MAC")
	}
	ip, ok := lt.Available(now)
	if !ok || ip != mustAddr("10.0.0.10") {
		t.Fatalf("want the expired address reclaimed, got ok=%v ip=%s", ok, ip)
	}
	if !lt.AddLease(macB, ip, now.Add(time.Hour)) {
		t.Fatal("AddLease should succeed by evicting the expired entry")
	}
	if _, ok := lt.LeaseFor(macA); ok {
		t.Error("the original MAC's lease should be gone after reclaim")
	}
}

func TestLeaseTableAvailableAscendingScan(t *testing.T) {
	lt := NewLeaseTable(3, mustAddr("10.0.0.10"), mustAddr("10.0.0.12"))
	mac := [6]byte{9}
	if !lt.AddLease(mac, mustAddr("10.0.0.10"), time.Now().Add(time.Hour)) {
		t.Fatal("setup failed")
	}
	ip, ok := lt.Available(time.Now())
	if !ok || ip != mustAddr("10.0.0.11") {
		t.Errorf("want next free address 10.0.0.11, got ok=%v ip=%s", ok, ip)
	}
}

func TestLeaseTableRemoveByMAC(t *testing.T) {
	lt := NewLeaseTable(2, mustAddr("10.0.0.10"), mustAddr("10.0.0.11"))
	mac := [6]byte{5}
	lt.AddLease(mac, mustAddr("10.0.0.10"), time.Now().Add(time.Hour))
	lt.RemoveByMAC(mac)
	if lt.Len() != 0 {
		t.Errorf("want 0 leases after RemoveByMAC, got %d", lt.Len())
	}
	if _, ok := lt.LeaseFor(mac); ok {
		t.Error("lease should be gone after RemoveByMAC")
	}
}

func TestLeaseTableReset(t *testing.T) {
	lt := NewLeaseTable(2, mustAddr("10.0.0.10"), mustAddr("10.0.0.11"))
	mac := [6]byte{7}
	lt.AddLease(mac, mustAddr("10.0.0.10"), time.Now().Add(time.Hour))
	lt.Reset(mustAddr("10.0.1.10"), mustAddr("10.0.1.11"))
	if lt.Len() != 0 {
		t.Fatalf("want 0 leases after Reset, got %d", lt.Len())
	}
	if lt.AddLease(mac, mustAddr("10.0.0.10"), time.Now().Add(time.Hour)) {
		t.Error("the old pool's addresses should be rejected after Reset")
	}
	if !lt.AddLease(mac, mustAddr("10.0.1.10"), time.Now().Add(time.Hour)) {
		t.Error("the new pool's addresses should be accepted after Reset")
	}
}
