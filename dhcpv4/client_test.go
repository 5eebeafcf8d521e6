package dhcpv4

import (
	"context"
	"errors"
	"net/netip"
	"testing"
	"time"
)

// fabric is an in-memory network connecting one Client to one Server, used
// to exercise the real send-receive loops without a real socket.
type fabric struct {
	toServer chan wireFrame
	toClient chan wireFrame
}

type wireFrame struct {
	from, to netip.AddrPort
	data     []byte
}

func newFabric() *fabric {
	return &fabric{
		toServer: make(chan wireFrame, 16),
		toClient: make(chan wireFrame, 16),
	}
}

type fabricConn struct {
	f     *fabric
	local netip.AddrPort
}

func (c *fabricConn) Send(ctx context.Context, b []byte) error {
	cp := append([]byte(nil), b...)
	select {
	case c.f.toServer <- wireFrame{from: c.local, to: netip.AddrPortFrom(netip.MustParseAddr("192.168.1.1"), DefaultServerPort), data: cp}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *fabricConn) ReceiveInto(ctx context.Context, b []byte) (int, error) {
	select {
	case wf := <-c.f.toClient:
		return copy(b, wf.data), nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (c *fabricConn) Close() error { return nil }

type fabricDialer struct{ f *fabric }

func (d fabricDialer) ConnectFrom(ctx context.Context, remote, local netip.AddrPort) (ConnectedUDP, error) {
	return &fabricConn{f: d.f, local: local}, nil
}

type fabricServerConn struct{ f *fabric }

func (s *fabricServerConn) ReceiveInto(ctx context.Context, b []byte) (int, netip.AddrPort, netip.AddrPort, error) {
	select {
	case wf := <-s.f.toServer:
		return copy(b, wf.data), wf.to, wf.from, nil
	case <-ctx.Done():
		return 0, netip.AddrPort{}, netip.AddrPort{}, ctx.Err()
	}
}

func (s *fabricServerConn) SendTo(ctx context.Context, local, remote netip.AddrPort, b []byte) error {
	cp := append([]byte(nil), b...)
	select {
	case s.f.toClient <- wireFrame{from: local, to: remote, data: cp}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *fabricServerConn) Close() error { return nil }

type fixedRand struct{ xid uint32 }

func (r fixedRand) Uint32() uint32 { return r.xid }

func mustAddr(s string) netip.Addr { return netip.MustParseAddr(s) }

func testServerConfig() ServerConfig {
	return ServerConfig{
		ServerIP:      mustAddr("192.168.1.1"),
		Subnet:        mustAddr("255.255.255.0"),
		Gateway:       mustAddr("192.168.1.1"),
		RangeStart:    mustAddr("192.168.1.10"),
		RangeEnd:      mustAddr("192.168.1.12"),
		LeaseDuration: time.Hour,
	}
}

func runServerOnce(t *testing.T, f *fabric, srv *Server) {
	t.Helper()
	buf := make([]byte, 1500)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := srv.Handle(ctx, &fabricServerConn{f: f}, buf); err != nil {
		t.Fatalf("server Handle: %v", err)
	}
}

// TestHappyPathDiscoverRequest covers spec scenario 1: a full DISCOVER ->
// OFFER -> REQUEST -> ACK exchange assigning the first pool address.
func TestHappyPathDiscoverRequest(t *testing.T) {
	f := newFabric()
	mac := [6]byte{0x02, 0, 0, 0, 0, 0x01}
	srv, err := NewServer(testServerConfig(), 4, SystemClock{}, nil)
	if err != nil {
		t.Fatal(err)
	}

	client := NewClient(ClientConfig{MAC: mac, Retries: 3, Timeout: time.Second}, fabricDialer{f: f}, fixedRand{xid: 0xDEADBEEF}, nil)

	done := make(chan struct {
		s   Settings
		err error
	}, 1)
	go func() {
		s, err := client.Discover(context.Background(), SystemClock{}, make([]byte, 1500), netip.Addr{})
		done <- struct {
			s   Settings
			err error
		}{s, err}
	}()

	runServerOnce(t, f, srv) // DISCOVER -> OFFER
	runServerOnce(t, f, srv) // REQUEST -> ACK

	res := <-done
	if res.err != nil {
		t.Fatalf("discover: %v", res.err)
	}
	if res.s.IP != mustAddr("192.168.1.10") {
		t.Errorf("want IP 192.168.1.10, got %s", res.s.IP)
	}
	if res.s.ServerIP != mustAddr("192.168.1.1") {
		t.Errorf("want server IP 192.168.1.1, got %s", res.s.ServerIP)
	}
	if res.s.LeaseSeconds != uint32(time.Hour.Seconds()) {
		t.Errorf("want lease 3600s, got %d", res.s.LeaseSeconds)
	}
	if srv.leases.Len() != 1 {
		t.Fatalf("want one lease, got %d", srv.leases.Len())
	}
	ip, ok := srv.leases.LeaseFor(mac)
	if !ok || ip != mustAddr("192.168.1.10") {
		t.Errorf("lease not bound to client mac: ok=%v ip=%s", ok, ip)
	}
}

// TestRequestConflictYieldsNak covers spec scenario 2: REQUEST for an
// address already leased to a different MAC is NAK'd and the table is
// unchanged.
func TestRequestConflictYieldsNak(t *testing.T) {
	srv, err := NewServer(testServerConfig(), 4, SystemClock{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	macA := [6]byte{0x02, 0, 0, 0, 0, 0x01}
	macB := [6]byte{0x02, 0, 0, 0, 0, 0x02}
	ip := mustAddr("192.168.1.10")
	if !srv.leases.AddLease(macA, ip, time.Now().Add(time.Hour)) {
		t.Fatal("setup: could not seed lease")
	}

	f := newFabric()
	client := NewClient(ClientConfig{MAC: macB, Retries: 3, Timeout: time.Second}, fabricDialer{f: f}, fixedRand{xid: 42}, nil)

	done := make(chan error, 1)
	go func() {
		_, err := client.Request(context.Background(), SystemClock{}, make([]byte, 1500), mustAddr("192.168.1.1"), ip)
		done <- err
	}()
	runServerOnce(t, f, srv)

	err = <-done
	if err == nil {
		t.Fatal("want NAK error, got nil")
	}
	if !errors.Is(err, ErrNak) {
		t.Errorf("want ErrNak, got %v", err)
	}
	gotIP, ok := srv.leases.LeaseFor(macA)
	if !ok || gotIP != ip {
		t.Errorf("lease table changed unexpectedly: ok=%v ip=%s", ok, gotIP)
	}
}

// TestRetriesExhausted covers spec scenario 3: with no server responding,
// Discover sends Retries frames, all sharing one xid, and returns Timeout.
func TestRetriesExhausted(t *testing.T) {
	f := newFabric()
	mac := [6]byte{1, 2, 3, 4, 5, 6}
	client := NewClient(ClientConfig{MAC: mac, Retries: 3, Timeout: 10 * time.Millisecond}, fabricDialer{f: f}, fixedRand{xid: 7}, nil)

	var seenXIDs []uint32
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case wf := <-f.toServer:
				p, err := Decode(wf.data)
				if err == nil {
					seenXIDs = append(seenXIDs, p.XID())
				}
			case <-stop:
				return
			}
		}
	}()

	_, err := client.Discover(context.Background(), SystemClock{}, make([]byte, 1500), netip.Addr{})
	close(stop)

	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("want ErrTimeout, got %v", err)
	}
	if len(seenXIDs) != 3 {
		t.Fatalf("want 3 attempts sent, got %d", len(seenXIDs))
	}
	for _, xid := range seenXIDs {
		if xid != 7 {
			t.Errorf("xid changed across retries: got %#x", xid)
		}
	}
}

// TestLateOfferTolerated covers spec scenario 4's tie-break rule through the
// REQUEST/ACK receive window, which is the same loop DISCOVER/OFFER uses: a
// foreign-xid ACK arriving before the matching one does not consume a retry.
func TestLateOfferTolerated(t *testing.T) {
	f := newFabric()
	mac := [6]byte{1, 2, 3, 4, 5, 6}
	client := NewClient(ClientConfig{MAC: mac, Retries: 3, Timeout: time.Second}, fabricDialer{f: f}, fixedRand{xid: 99}, nil)

	done := make(chan struct {
		s   Settings
		err error
	}, 1)
	go func() {
		s, err := client.Request(context.Background(), SystemClock{}, make([]byte, 1500), mustAddr("192.168.1.1"), mustAddr("192.168.1.10"))
		done <- struct {
			s   Settings
			err error
		}{s, err}
	}()

	// Drain the REQUEST the client sends.
	<-f.toServer

	// Foreign-xid ACK first.
	foreign := make([]byte, 1500)
	fp, _ := NewPacket(foreign)
	fp.ClearHeader()
	fp.SetOp(OpReply)
	fp.SetXID(12345)
	copy(fp.CHAddr()[:6], mac[:])
	fp.SetMagicCookie()
	var optBuf [32]byte
	n, _ := oneShotOptions(optBuf[:], MsgAck, mac)
	total, _ := fp.EncodeOptions(optBuf[:n])
	f.toClient <- wireFrame{data: append([]byte(nil), foreign[:total]...)}

	// Correct ACK.
	correct := make([]byte, 1500)
	cp, _ := NewPacket(correct)
	cp.ClearHeader()
	cp.SetOp(OpReply)
	cp.SetXID(99)
	copy(cp.CHAddr()[:6], mac[:])
	*cp.YIAddr() = [4]byte{192, 168, 1, 10}
	cp.SetMagicCookie()
	n2, _ := replyOptions(optBuf[:], MsgAck, mustAddr("192.168.1.1"), 3600, netip.Addr{}, netip.Addr{}, nil)
	total2, _ := cp.EncodeOptions(optBuf[:n2])
	f.toClient <- wireFrame{data: append([]byte(nil), correct[:total2]...)}

	res := <-done
	if res.err != nil {
		t.Fatalf("request: %v", res.err)
	}
	if res.s.IP != mustAddr("192.168.1.10") {
		t.Errorf("want IP 192.168.1.10, got %s", res.s.IP)
	}
	select {
	case <-f.toServer:
		t.Error("a retry frame was sent, but none should have been needed")
	default:
	}
}

// TestPoolExhaustionWithReclaim covers spec scenario 5: a single-address
// pool whose only lease has expired is reclaimed for a new MAC.
func TestPoolExhaustionWithReclaim(t *testing.T) {
	cfg := testServerConfig()
	cfg.RangeStart = mustAddr("192.168.1.10")
	cfg.RangeEnd = mustAddr("192.168.1.10")
	srv, err := NewServer(cfg, 1, SystemClock{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	macA := [6]byte{1, 0, 0, 0, 0, 1}
	macB := [6]byte{1, 0, 0, 0, 0, 2}
	ip := mustAddr("192.168.1.10")
	if !srv.leases.AddLease(macA, ip, time.Now().Add(-time.Second)) {
		t.Fatal("setup: could not seed expired lease")
	}

	now := time.Now()
	if !srv.leases.IsAvailable(macB, ip, now) {
		t.Fatal("expired lease should be available to a new MAC")
	}
	got, ok := srv.leases.Available(now)
	if !ok || got != ip {
		t.Fatalf("want reclaimed ip %s, got %s ok=%v", ip, got, ok)
	}
	if !srv.leases.AddLease(macB, ip, now.Add(time.Hour)) {
		t.Fatal("AddLease should succeed by reclaiming the expired entry")
	}
	boundIP, ok := srv.leases.LeaseFor(macB)
	if !ok || boundIP != ip {
		t.Errorf("lease not rebound to macB: ok=%v ip=%s", ok, boundIP)
	}
}

// TestReleaseClearsLease covers spec scenario 6: RELEASE removes the lease
// so the address becomes immediately available.
func TestReleaseClearsLease(t *testing.T) {
	srv, err := NewServer(testServerConfig(), 4, SystemClock{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	mac := [6]byte{0x02, 0, 0, 0, 0, 0x01}
	ip := mustAddr("192.168.1.10")
	if !srv.leases.AddLease(mac, ip, time.Now().Add(time.Hour)) {
		t.Fatal("setup: could not seed lease")
	}

	f := newFabric()
	client := NewClient(ClientConfig{MAC: mac, Retries: 1, Timeout: time.Second}, fabricDialer{f: f}, fixedRand{xid: 5}, nil)

	done := make(chan error, 1)
	go func() {
		done <- client.Release(context.Background(), SystemClock{}, make([]byte, 1500), mustAddr("192.168.1.1"), ip)
	}()
	runServerOnce(t, f, srv)

	if err := <-done; err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, ok := srv.leases.LeaseFor(mac); ok {
		t.Error("lease should have been removed by RELEASE")
	}
}
