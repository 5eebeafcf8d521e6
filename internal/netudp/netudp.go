// Package netudp adapts the standard library's net.UDPConn to the
// dhcpv4.ConnectedUDPDialer and dhcpv4.MultiBoundUDPBinder interfaces, for
// use by the cmd/ demo binaries. It is not part of the library's public
// contract, the same relationship teacher's internal/ltesto fakes have to
// its core frame types.
package netudp

import (
	"context"
	"net"
	"net/netip"
	"time"

	"github.com/nilgora/dhcpv4"
)

// Dialer opens connected UDP sockets, honoring the broadcast address.
type Dialer struct {
	// Interface, if set, binds outgoing sockets to this network interface
	// (required to send broadcast DISCOVER/REQUEST frames on Linux).
	Interface string
}

func (d Dialer) ConnectFrom(ctx context.Context, remote, local netip.AddrPort) (dhcpv4.ConnectedUDP, error) {
	lc := net.ListenConfig{}
	if d.Interface != "" {
		lc.Control = bindToInterface(d.Interface)
	}
	conn, err := lc.ListenPacket(ctx, "udp4", local.String())
	if err != nil {
		return nil, err
	}
	return &connectedUDP{conn: conn.(*net.UDPConn), remote: net.UDPAddrFromAddrPort(remote)}, nil
}

type connectedUDP struct {
	conn   *net.UDPConn
	remote *net.UDPAddr
}

func (c *connectedUDP) Send(ctx context.Context, b []byte) error {
	_, err := c.conn.WriteToUDP(b, c.remote)
	return err
}

func (c *connectedUDP) ReceiveInto(ctx context.Context, b []byte) (int, error) {
	return readWithContext(ctx, c.conn, b)
}

func (c *connectedUDP) Close() error { return c.conn.Close() }

// Binder opens a multi-bound UDP socket via net.ListenConfig. The local
// address reported for each received datagram is the socket's bound
// address, not the per-datagram destination (no control message is read),
// and SendTo always sends from the bound socket, ignoring its local
// argument.
type Binder struct {
	Interface string
}

func (b Binder) BindMultiple(ctx context.Context, local netip.AddrPort) (dhcpv4.MultiBoundUDP, error) {
	lc := net.ListenConfig{}
	if b.Interface != "" {
		lc.Control = bindToInterface(b.Interface)
	}
	conn, err := lc.ListenPacket(ctx, "udp4", local.String())
	if err != nil {
		return nil, err
	}
	return &multiBoundUDP{conn: conn.(*net.UDPConn)}, nil
}

type multiBoundUDP struct {
	conn *net.UDPConn
}

func (m *multiBoundUDP) ReceiveInto(ctx context.Context, b []byte) (int, netip.AddrPort, netip.AddrPort, error) {
	n, _, remote, err := m.conn.ReadMsgUDPAddrPort(b, nil)
	if err != nil {
		return 0, netip.AddrPort{}, netip.AddrPort{}, err
	}
	local, _ := netip.ParseAddrPort(m.conn.LocalAddr().String())
	return n, local, remote, nil
}

func (m *multiBoundUDP) SendTo(ctx context.Context, local, remote netip.AddrPort, b []byte) error {
	_, err := m.conn.WriteToUDPAddrPort(b, remote)
	return err
}

func (m *multiBoundUDP) Close() error { return m.conn.Close() }

// readWithContext lets a ctx cancellation interrupt a blocking Read by
// forcing a read deadline; the watcher goroutine always exits promptly
// because stop is closed once Read returns, regardless of which side won.
func readWithContext(ctx context.Context, conn *net.UDPConn, b []byte) (int, error) {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.SetReadDeadline(time.Unix(0, 0))
		case <-stop:
		}
	}()
	return conn.Read(b)
}
