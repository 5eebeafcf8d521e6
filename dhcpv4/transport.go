package dhcpv4

import (
	"context"
	"math/rand/v2"
	"net/netip"
	"time"
)

// ConnectedUDP is a UDP socket bound to one local/remote address pair. The
// client uses it for its request/reply exchange. See spec.md §6.
type ConnectedUDP interface {
	Send(ctx context.Context, b []byte) error
	ReceiveInto(ctx context.Context, b []byte) (int, error)
	Close() error
}

// ConnectedUDPDialer opens a ConnectedUDP, permitting local or remote to be
// the broadcast address 255.255.255.255.
type ConnectedUDPDialer interface {
	ConnectFrom(ctx context.Context, remote, local netip.AddrPort) (ConnectedUDP, error)
}

// MultiBoundUDP is a UDP socket bound to receive from any remote address,
// remembering which local interface address a datagram arrived on so a
// reply can be sent from the same one. The server uses it exclusively.
type MultiBoundUDP interface {
	ReceiveInto(ctx context.Context, b []byte) (n int, local, remote netip.AddrPort, err error)
	SendTo(ctx context.Context, local, remote netip.AddrPort, b []byte) error
	Close() error
}

// MultiBoundUDPBinder opens a MultiBoundUDP bound to local.
type MultiBoundUDPBinder interface {
	BindMultiple(ctx context.Context, local netip.AddrPort) (MultiBoundUDP, error)
}

// Clock is the monotonic time source consumed by Client and Server. Timeouts
// and lease expiries are computed against it rather than package-level
// time.Now, so tests can inject deterministic time.
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) Timer
}

// Timer completes once after the duration it was created with.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

// RandSource produces the 32-bit transaction identifiers a Client needs, one
// per operation.
type RandSource interface {
	Uint32() uint32
}

// SystemClock is the default Clock, backed by the real wall clock. It exists
// so the package is usable without callers wiring their own collaborators;
// tests wanting deterministic timeouts should inject a fake instead.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) NewTimer(d time.Duration) Timer {
	return &systemTimer{t: time.NewTimer(d)}
}

type systemTimer struct{ t *time.Timer }

func (s *systemTimer) C() <-chan time.Time { return s.t.C }
func (s *systemTimer) Stop() bool          { return s.t.Stop() }

// MathRandSource is the default RandSource, backed by math/rand/v2's
// package-level generator.
type MathRandSource struct{}

func (MathRandSource) Uint32() uint32 { return rand.Uint32() }
