package dhcpv4

import (
	"context"
	"log/slog"
	"net/netip"
	"time"
)

// Server answers DISCOVER/REQUEST/DECLINE/RELEASE over a MultiBoundUDP,
// managing a bounded LeaseTable, per spec.md §4.4.
type Server struct {
	cfg     ServerConfig
	clock   Clock
	leases  *LeaseTable
	log     *slog.Logger
	limiter *DiscoverLimiter
	metrics *Metrics
}

// NewServer constructs a Server bound to cfg's pool, with a lease table of
// the given capacity. A nil clock defaults to SystemClock{}, a nil log to
// slog.Default().
func NewServer(cfg ServerConfig, capacity int, clock Clock, log *slog.Logger) (*Server, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		cfg:    cfg,
		clock:  clock,
		leases: NewLeaseTable(capacity, cfg.RangeStart, cfg.RangeEnd),
		log:    log,
	}, nil
}

// Configure replaces the server's pool and lease policy, discarding all
// existing leases. Useful for re-pointing a long-lived Server at a new
// range without reallocating it.
func (s *Server) Configure(cfg ServerConfig) error {
	if err := cfg.validate(); err != nil {
		return err
	}
	s.cfg = cfg
	s.leases.Reset(cfg.RangeStart, cfg.RangeEnd)
	return nil
}

// SetDiscoverLimiter installs an optional per-MAC rate limiter in front of
// the Discover path. A nil limiter disables rate limiting (the default).
func (s *Server) SetDiscoverLimiter(l *DiscoverLimiter) { s.limiter = l }

// SetMetrics installs an optional Prometheus collector. A nil value (the
// default) disables metrics entirely at zero cost.
func (s *Server) SetMetrics(m *Metrics) { s.metrics = m }

// Run binds a multi-bound socket to (ServerIP, 67) and loops over Handle
// until it returns an I/O error or ctx is done, matching spec.md §4.4's
// run(udp, buf). The server is lenient: malformed packets and unsupported
// message types are silently dropped by Handle, not surfaced here.
func (s *Server) Run(ctx context.Context, binder MultiBoundUDPBinder, buf []byte) error {
	conn, err := binder.BindMultiple(ctx, netip.AddrPortFrom(s.cfg.ServerIP, DefaultServerPort))
	if err != nil {
		return ioError(err)
	}
	defer conn.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if err := s.Handle(ctx, conn, buf); err != nil {
			return err
		}
	}
}

// Handle processes exactly one inbound datagram. It returns a non-nil error
// only for transport (I/O) failures; malformed packets, reply packets,
// requests addressed to other servers, and unsupported message types are
// dropped silently,
// per spec.md §4.4/§7.
func (s *Server) Handle(ctx context.Context, conn MultiBoundUDP, buf []byte) error {
	n, local, remote, err := conn.ReceiveInto(ctx, buf)
	if err != nil {
		return ioError(err)
	}

	req, err := Decode(buf[:n])
	if err != nil {
		s.log.Debug("dhcpv4: dropping malformed packet", "remote", remote, "err", err)
		return nil
	}
	if req.Op() != OpRequest {
		return nil
	}

	mt, ok := s.messageType(req)
	if !ok || !s.accepts(req, mt) {
		return nil
	}

	mac := *req.CHAddrMAC()
	xid := req.XID()

	if s.limiter != nil && mt == MsgDiscover && !s.limiter.Allow(mac) {
		s.log.Debug("dhcpv4: discover rate limited", "mac", mac)
		return nil
	}
	if s.metrics != nil {
		s.metrics.observe(mt)
	}

	now := s.clock.Now()
	var (
		assigned netip.Addr
		replyMT  MessageType
		send     bool
	)
	switch mt {
	case MsgDiscover:
		assigned, send = s.chooseForDiscover(mac, s.requestedIP(req), now)
		replyMT = MsgOffer

	case MsgRequest:
		ip := s.requestedIP(req)
		if !ip.IsValid() {
			ip = netip.AddrFrom4(*req.CIAddr())
		}
		if s.leases.IsAvailable(mac, ip, now) && s.leases.AddLease(mac, ip, now.Add(s.cfg.LeaseDuration)) {
			assigned, send, replyMT = ip, true, MsgAck
			s.log.Info("dhcpv4: lease granted", "mac", mac, "ip", ip)
		} else {
			send, replyMT = true, MsgNak
		}
		if s.metrics != nil {
			s.metrics.leasesActive.Set(float64(s.leases.Len()))
			s.metrics.observeOutcome(replyMT)
		}

	case MsgDecline, MsgRelease:
		s.leases.RemoveByMAC(mac)
		if s.metrics != nil {
			s.metrics.leasesActive.Set(float64(s.leases.Len()))
		}
		return nil

	default:
		return nil
	}

	if !send {
		return nil
	}

	var scratch [548]byte
	replyLen, operr := s.buildReply(scratch[:], replyMT, xid, mac, assigned)
	if operr != nil {
		s.log.Debug("dhcpv4: failed to build reply", "err", operr)
		return nil
	}
	if err := conn.SendTo(ctx, local, remote, scratch[:replyLen]); err != nil {
		return ioError(err)
	}
	return nil
}

// chooseForDiscover implements spec.md §4.4's Discover address selection:
// the client's requested IP if available, else an existing lease for this
// MAC, else the next free address from the pool.
func (s *Server) chooseForDiscover(mac [6]byte, requestedIP netip.Addr, now time.Time) (netip.Addr, bool) {
	if requestedIP.IsValid() && s.leases.IsAvailable(mac, requestedIP, now) {
		return requestedIP, true
	}
	if ip, ok := s.leases.LeaseFor(mac); ok {
		return ip, true
	}
	return s.leases.Available(now)
}

func (s *Server) messageType(p Packet) (MessageType, bool) {
	var (
		mt    MessageType
		found bool
	)
	p.ForEachOption(func(code OptNum, data []byte) error {
		if code == OptMessageType && len(data) == 1 {
			mt = MessageType(data[0])
			found = true
		}
		return nil
	})
	return mt, found
}

func (s *Server) serverIdentifier(p Packet) (netip.Addr, bool) {
	var (
		ip    netip.Addr
		found bool
	)
	p.ForEachOption(func(code OptNum, data []byte) error {
		if code == OptServerIdentification && len(data) == 4 {
			ip = netip.AddrFrom4([4]byte(data))
			found = true
		}
		return nil
	})
	return ip, found
}

func (s *Server) requestedIP(p Packet) netip.Addr {
	var ip netip.Addr
	p.ForEachOption(func(code OptNum, data []byte) error {
		if code == OptRequestedIPaddress && len(data) == 4 {
			ip = netip.AddrFrom4([4]byte(data))
		}
		return nil
	})
	return ip
}

// accepts implements spec.md §4.4's filter: process only when
// ServerIdentifier equals our IP, or it is absent and the message is
// Discover.
func (s *Server) accepts(p Packet, mt MessageType) bool {
	sid, ok := s.serverIdentifier(p)
	if ok {
		return sid == s.cfg.ServerIP
	}
	return mt == MsgDiscover
}

// buildReply constructs a reply packet into dst (a buffer distinct from the
// request's, so the request's already-extracted xid/mac survive the
// rebuild; see spec.md §9's note on buffer aliasing) and returns its
// encoded length.
func (s *Server) buildReply(dst []byte, replyMT MessageType, xid uint32, mac [6]byte, assignedIP netip.Addr) (int, *OpError) {
	p, err := NewPacket(dst)
	if err != nil {
		return 0, formatError(err.(*FormatError))
	}
	p.ClearHeader()
	p.SetOp(OpReply)
	p.SetHardware(1, 6, 0)
	p.SetXID(xid)
	chaddr := p.CHAddr()
	copy(chaddr[:6], mac[:])
	if assignedIP.IsValid() {
		*p.YIAddr() = assignedIP.As4()
	}
	p.SetMagicCookie()

	var leaseSecs uint32
	if replyMT != MsgNak {
		leaseSecs = uint32(s.cfg.LeaseDuration.Seconds())
	}

	var optScratch [256]byte
	n, err := replyOptions(optScratch[:], replyMT, s.cfg.ServerIP, leaseSecs, s.cfg.Gateway, s.cfg.Subnet, s.cfg.DNS)
	if err != nil {
		return 0, formatError(err.(*FormatError))
	}
	total, err := p.EncodeOptions(optScratch[:n])
	if err != nil {
		return 0, formatError(err.(*FormatError))
	}
	return total, nil
}
