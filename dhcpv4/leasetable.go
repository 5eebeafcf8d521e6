package dhcpv4

import (
	"net/netip"
	"time"
)

// Lease binds an IPv4 address to a client MAC until Expiry. See spec.md §3.
type Lease struct {
	MAC    [6]byte
	Expiry time.Time
}

// LeaseTable is a bounded IPv4 -> Lease map enforcing the invariants of
// spec.md §3: every key lies in [rangeStart, rangeEnd]; at most one entry
// per MAC; expired entries may be reclaimed. AddLease fails once the table
// is full and the address is not already a key; it does not evict expired
// entries itself. An expired entry is reclaimed only by Available, which
// deletes one when every pool address has an entry. Grounded loosely on the
// map-based address pool shape seen in the pack's standalone lease-pool
// reference (other_examples), adapted to the numeric-range/expiry model
// spec.md requires.
type LeaseTable struct {
	capacity             int
	rangeStart, rangeEnd uint32
	leases               map[netip.Addr]Lease
}

// NewLeaseTable constructs a LeaseTable bounded at capacity entries over the
// inclusive [rangeStart, rangeEnd] pool.
func NewLeaseTable(capacity int, rangeStart, rangeEnd netip.Addr) *LeaseTable {
	return &LeaseTable{
		capacity:   capacity,
		rangeStart: ip4ToUint32(rangeStart),
		rangeEnd:   ip4ToUint32(rangeEnd),
		leases:     make(map[netip.Addr]Lease, capacity),
	}
}

// Reset rebinds the table to a new pool range, discarding all leases.
func (t *LeaseTable) Reset(rangeStart, rangeEnd netip.Addr) {
	t.rangeStart = ip4ToUint32(rangeStart)
	t.rangeEnd = ip4ToUint32(rangeEnd)
	t.leases = make(map[netip.Addr]Lease, t.capacity)
}

func ip4ToUint32(a netip.Addr) uint32 {
	b := a.As4()
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func uint32ToIP4(v uint32) netip.Addr {
	return netip.AddrFrom4([4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
}

func (t *LeaseTable) inPool(ip netip.Addr) bool {
	v := ip4ToUint32(ip)
	return v >= t.rangeStart && v <= t.rangeEnd
}

// IsAvailable reports spec.md §4.4's is_available(mac, ip): ip is in the
// pool, and either nothing is leased to it, the lease belongs to mac
// already, or the lease has expired.
func (t *LeaseTable) IsAvailable(mac [6]byte, ip netip.Addr, now time.Time) bool {
	if !t.inPool(ip) {
		return false
	}
	lease, ok := t.leases[ip]
	if !ok {
		return true
	}
	return lease.MAC == mac || now.After(lease.Expiry)
}

// LeaseFor returns an existing lease's IP for mac, if any, regardless of
// expiry (an expired self-lease is still "an existing lease for this MAC"
// per spec.md §4.4's Discover chain).
func (t *LeaseTable) LeaseFor(mac [6]byte) (netip.Addr, bool) {
	for ip, lease := range t.leases {
		if lease.MAC == mac {
			return ip, true
		}
	}
	return netip.Addr{}, false
}

// Available implements spec.md §4.4's available(): the pool's addresses are
// scanned in ascending numeric order for the first one with no table entry.
// If every pool address is taken, the table is scanned for an expired entry
// to evict and reuse.
func (t *LeaseTable) Available(now time.Time) (netip.Addr, bool) {
	for v := t.rangeStart; ; v++ {
		ip := uint32ToIP4(v)
		if _, ok := t.leases[ip]; !ok {
			return ip, true
		}
		if v == t.rangeEnd {
			break
		}
	}
	for ip, lease := range t.leases {
		if now.After(lease.Expiry) {
			delete(t.leases, ip)
			return ip, true
		}
	}
	return netip.Addr{}, false
}

// AddLease enforces the single-lease-per-MAC invariant by first removing
// any existing lease bound to mac, then inserts (mac, ip, expiry). It fails
// if ip is outside the pool, or the table is at capacity and ip is not
// already a key (i.e. this would grow the table past its bound).
func (t *LeaseTable) AddLease(mac [6]byte, ip netip.Addr, expiry time.Time) bool {
	if !t.inPool(ip) {
		return false
	}
	t.RemoveByMAC(mac)
	if _, exists := t.leases[ip]; !exists && len(t.leases) >= t.capacity {
		return false
	}
	t.leases[ip] = Lease{MAC: mac, Expiry: expiry}
	return true
}

// RemoveByMAC removes whatever lease is currently bound to mac, if any.
func (t *LeaseTable) RemoveByMAC(mac [6]byte) {
	for ip, lease := range t.leases {
		if lease.MAC == mac {
			delete(t.leases, ip)
			return
		}
	}
}

// Len reports the number of active leases.
func (t *LeaseTable) Len() int { return len(t.leases) }
