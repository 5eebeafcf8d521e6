package dhcpv4

import (
	"context"
	"log/slog"
	"net/netip"
	"time"
)

var broadcastAddr = netip.MustParseAddr("255.255.255.255")

// Client drives the DISCOVER/REQUEST/RELEASE/DECLINE exchange over a
// ConnectedUDPDialer, per spec.md §4.3. A Client is stateless across
// transactions apart from its RNG; one value may be reused for any number
// of operations, sequentially, matching spec.md §3's lifecycle note.
type Client struct {
	cfg    ClientConfig
	dialer ConnectedUDPDialer
	rng    RandSource
	log    *slog.Logger
}

// NewClient constructs a Client. A nil log defaults to slog.Default(), and
// a nil rng defaults to MathRandSource{} (grounded on teacher's
// examples/stackbasic use of log/slog for ambient logging).
func NewClient(cfg ClientConfig, dialer ConnectedUDPDialer, rng RandSource, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	if rng == nil {
		rng = MathRandSource{}
	}
	return &Client{cfg: cfg, dialer: dialer, rng: rng, log: log}
}

func saturateSecs(d time.Duration) uint16 {
	secs := d.Seconds()
	if secs < 0 {
		return 0
	}
	if secs > 65535 {
		return 65535
	}
	return uint16(secs)
}

// buildFunc produces, for a given xid and elapsed secs, the encoded packet
// length written into dst (which has at least OptionsOffset bytes of
// headroom for the fixed header).
type buildFunc func(xid uint32, secs uint16, dst []byte) (int, *OpError)

func (c *Client) buildPacket(dst []byte, xid uint32, secs uint16, writeOpts func(opts []byte) (int, error)) (int, *OpError) {
	p, err := NewPacket(dst)
	if err != nil {
		return 0, formatError(err.(*FormatError))
	}
	p.ClearHeader()
	p.SetOp(OpRequest)
	p.SetHardware(1, 6, 0)
	p.SetXID(xid)
	p.SetSecs(secs)
	chaddr := p.CHAddr()
	copy(chaddr[:6], c.cfg.MAC[:])
	p.SetMagicCookie()

	n, err := writeOpts(dst[OptionsOffset:])
	if err != nil {
		fe, ok := err.(*FormatError)
		if !ok {
			fe = &FormatError{Kind: FormatShortBuffer}
		}
		return 0, formatError(fe)
	}
	total, err := p.EncodeOptions(dst[OptionsOffset : OptionsOffset+n])
	if err != nil {
		return 0, formatError(err.(*FormatError))
	}
	return total, nil
}

// exchange implements spec.md §4.3's send-receive loop: one xid chosen once,
// up to cfg.Retries attempts, each sending a freshly built request and
// racing a receive against a per-attempt timer. expect == nil means no
// reply is awaited (Release, Decline): the first successful send is enough.
func (c *Client) exchange(ctx context.Context, clock Clock, buf []byte, serverIP netip.Addr, build buildFunc, expect map[MessageType]bool) (MessageType, Settings, *OpError) {
	if clock == nil {
		clock = SystemClock{}
	}
	xid := c.rng.Uint32()
	start := clock.Now()

	remoteIP := serverIP
	if !remoteIP.IsValid() {
		remoteIP = broadcastAddr
	}
	remote := netip.AddrPortFrom(remoteIP, DefaultServerPort)
	local := netip.AddrPortFrom(netip.IPv4Unspecified(), DefaultClientPort)

	for attempt := 0; attempt < c.cfg.Retries; attempt++ {
		conn, err := c.dialer.ConnectFrom(ctx, remote, local)
		if err != nil {
			return 0, Settings{}, ioError(err)
		}

		secs := saturateSecs(clock.Now().Sub(start))
		n, operr := build(xid, secs, buf)
		if operr != nil {
			conn.Close()
			return 0, Settings{}, operr
		}
		if err := conn.Send(ctx, buf[:n]); err != nil {
			conn.Close()
			return 0, Settings{}, ioError(err)
		}

		if expect == nil {
			conn.Close()
			return 0, Settings{}, nil
		}

		mt, settings, matched, operr := c.receiveWindow(ctx, clock, conn, buf, xid, expect)
		conn.Close()
		if operr != nil {
			return 0, Settings{}, operr
		}
		if matched {
			return mt, settings, nil
		}
		c.log.Debug("dhcpv4: attempt timed out, retrying", "xid", xid, "attempt", attempt)
	}
	return 0, Settings{}, ErrTimeout
}

// receiveWindow races conn.ReceiveInto against a timer of cfg.Timeout,
// tolerating late or foreign frames (ones parseReply does not match to
// (mac, xid, expect)) without ending the window, per spec.md §4.3's
// tie-break rule.
func (c *Client) receiveWindow(ctx context.Context, clock Clock, conn ConnectedUDP, buf []byte, xid uint32, expect map[MessageType]bool) (MessageType, Settings, bool, *OpError) {
	timer := clock.NewTimer(c.cfg.Timeout)
	defer timer.Stop()

	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		n   int
		err error
	}
	recvCh := make(chan result, 1)

	for {
		go func() {
			n, err := conn.ReceiveInto(attemptCtx, buf)
			recvCh <- result{n, err}
		}()

		select {
		case <-timer.C():
			return 0, Settings{}, false, nil
		case res := <-recvCh:
			if res.err != nil {
				if attemptCtx.Err() != nil {
					// Window closed while a receive was in flight; not a
					// real transport failure.
					return 0, Settings{}, false, nil
				}
				return 0, Settings{}, false, ioError(res.err)
			}
			p, err := Decode(buf[:res.n])
			if err != nil {
				return 0, Settings{}, false, formatError(err.(*FormatError))
			}
			mt, settings, ok := parseReply(p, c.cfg.MAC, xid)
			if !ok || !expect[mt] {
				continue // late/foreign frame: keep waiting in the same window
			}
			return mt, settings, true, nil
		}
	}
}

// Discover performs DISCOVER, awaits an OFFER, then chains directly into
// Request for the offered address, matching spec.md §4.3.
func (c *Client) Discover(ctx context.Context, clock Clock, buf []byte, requestedIP netip.Addr) (Settings, error) {
	build := func(xid uint32, secs uint16, dst []byte) (int, *OpError) {
		return c.buildPacket(dst, xid, secs, func(opts []byte) (int, error) {
			return discoverOptions(opts, requestedIP)
		})
	}
	_, settings, operr := c.exchange(ctx, clock, buf, netip.Addr{}, build, map[MessageType]bool{MsgOffer: true})
	if operr != nil {
		return Settings{}, operr
	}
	return c.Request(ctx, clock, buf, settings.ServerIP, settings.IP)
}

// Request performs REQUEST and awaits ACK or NAK. A NAK surfaces as
// ErrNak, matching spec.md §4.3.
func (c *Client) Request(ctx context.Context, clock Clock, buf []byte, serverIP, ourIP netip.Addr) (Settings, error) {
	build := func(xid uint32, secs uint16, dst []byte) (int, *OpError) {
		return c.buildPacket(dst, xid, secs, func(opts []byte) (int, error) {
			return requestOptions(opts, c.cfg.MAC, serverIP, ourIP)
		})
	}
	mt, settings, operr := c.exchange(ctx, clock, buf, serverIP, build, map[MessageType]bool{MsgAck: true, MsgNak: true})
	if operr != nil {
		return Settings{}, operr
	}
	if mt == MsgNak {
		return Settings{}, ErrNak
	}
	return settings, nil
}

// Release sends RELEASE, carrying serverIP as its ServerIdentifier, and does
// not await a reply.
func (c *Client) Release(ctx context.Context, clock Clock, buf []byte, serverIP, ourIP netip.Addr) error {
	build := func(xid uint32, secs uint16, dst []byte) (int, *OpError) {
		return c.buildPacket(dst, xid, secs, func(opts []byte) (int, error) {
			n, err := releaseOptions(opts, c.cfg.MAC)
			if err != nil || !serverIP.IsValid() {
				return n, err
			}
			w := optionWriter{buf: opts[n:]}
			w.putIPs(OptServerIdentification, serverIP)
			if w.err != nil {
				return 0, w.err
			}
			return n + w.n, nil
		})
	}
	_, _, operr := c.exchange(ctx, clock, buf, serverIP, build, nil)
	if operr != nil {
		return operr
	}
	return nil
}

// Decline sends DECLINE, carrying serverIP as its ServerIdentifier, and does
// not await a reply.
func (c *Client) Decline(ctx context.Context, clock Clock, buf []byte, serverIP, ourIP netip.Addr) error {
	build := func(xid uint32, secs uint16, dst []byte) (int, *OpError) {
		return c.buildPacket(dst, xid, secs, func(opts []byte) (int, error) {
			n, err := declineOptions(opts, c.cfg.MAC)
			if err != nil || !serverIP.IsValid() {
				return n, err
			}
			w := optionWriter{buf: opts[n:]}
			w.putIPs(OptServerIdentification, serverIP)
			if w.err != nil {
				return 0, w.err
			}
			return n + w.n, nil
		})
	}
	_, _, operr := c.exchange(ctx, clock, buf, serverIP, build, nil)
	if operr != nil {
		return operr
	}
	return nil
}
