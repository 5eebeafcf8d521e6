package dhcpv4

import (
	"encoding/binary"
	"net/netip"
)

// Settings is the parsed outcome of a client reply. Fields use netip.Addr's
// zero value (invalid, IsValid() == false) to mean "absent", matching
// spec.md §3's "optional" fields without an extra set of bool flags per
// field, except for LeaseSeconds where 0 is itself a meaningful (if
// degenerate) value and HasLease disambiguates it from "not present".
type Settings struct {
	IP           netip.Addr
	ServerIP     netip.Addr
	Subnet       netip.Addr
	Router       netip.Addr
	DNSPrimary   netip.Addr
	DNSSecondary netip.Addr
	LeaseSeconds uint32
	HasLease     bool
}

// optionWriter appends TLV-encoded options into a fixed destination buffer,
// tracking the first error so builder functions below can fail once at the
// end instead of threading an error return through every call.
type optionWriter struct {
	buf []byte
	n   int
	err *FormatError
}

func (w *optionWriter) put(opt OptNum, data ...byte) {
	if w.err != nil {
		return
	}
	n, err := encodeOption(w.buf[w.n:], opt, data...)
	if err != nil {
		if fe, ok := err.(*FormatError); ok {
			w.err = fe
		} else {
			w.err = &FormatError{Kind: FormatShortBuffer}
		}
		return
	}
	w.n += n
}

func (w *optionWriter) putIPs(opt OptNum, ips ...netip.Addr) {
	data := make([]byte, 0, 4*len(ips))
	for _, ip := range ips {
		b := ip.As4()
		data = append(data, b[:]...)
	}
	w.put(opt, data...)
}

func (w *optionWriter) putU32(opt OptNum, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.put(opt, b[:]...)
}

// discoverOptions builds the option set for a DISCOVER message: MessageType,
// an optional RequestedIpAddress, and the ParameterRequestList. See
// spec.md §4.2.
func discoverOptions(dst []byte, requestedIP netip.Addr) (int, error) {
	w := optionWriter{buf: dst}
	w.put(OptMessageType, byte(MsgDiscover))
	if requestedIP.IsValid() {
		w.putIPs(OptRequestedIPaddress, requestedIP)
	}
	w.put(OptParameterRequestList, defaultParamReqList...)
	if w.err != nil {
		return 0, w.err
	}
	return w.n, nil
}

// requestOptions builds the option set for a REQUEST message: MessageType,
// ClientIdentifier, RequestedIpAddress, ServerIdentifier, and the
// ParameterRequestList.
func requestOptions(dst []byte, mac [6]byte, serverIP, ourIP netip.Addr) (int, error) {
	w := optionWriter{buf: dst}
	w.put(OptMessageType, byte(MsgRequest))
	w.put(OptClientIdentifier, mac[:]...)
	w.putIPs(OptRequestedIPaddress, ourIP)
	w.putIPs(OptServerIdentification, serverIP)
	w.put(OptParameterRequestList, defaultParamReqList...)
	if w.err != nil {
		return 0, w.err
	}
	return w.n, nil
}

// releaseOptions and declineOptions build the option set for RELEASE and
// DECLINE respectively: MessageType, ClientIdentifier, and the
// ParameterRequestList. Neither expects a reply.
func releaseOptions(dst []byte, mac [6]byte) (int, error) {
	return oneShotOptions(dst, MsgRelease, mac)
}

func declineOptions(dst []byte, mac [6]byte) (int, error) {
	return oneShotOptions(dst, MsgDecline, mac)
}

func oneShotOptions(dst []byte, mt MessageType, mac [6]byte) (int, error) {
	w := optionWriter{buf: dst}
	w.put(OptMessageType, byte(mt))
	w.put(OptClientIdentifier, mac[:]...)
	w.put(OptParameterRequestList, defaultParamReqList...)
	if w.err != nil {
		return 0, w.err
	}
	return w.n, nil
}

// replyOptions builds the server-side option set for Offer/Ack/Nak:
// MessageType, ServerIdentifier, IpAddressLeaseTime, and (omitted for Nak)
// SubnetMask if configured, Router if configured, DomainNameServer if any
// are configured. See spec.md §4.2.
func replyOptions(dst []byte, mt MessageType, serverIP netip.Addr, leaseSecs uint32, gateway, subnet netip.Addr, dns []netip.Addr) (int, error) {
	w := optionWriter{buf: dst}
	w.put(OptMessageType, byte(mt))
	w.putIPs(OptServerIdentification, serverIP)
	w.putU32(OptIPAddressLeaseTime, leaseSecs)
	if mt != MsgNak {
		if subnet.IsValid() {
			w.putIPs(OptSubnetMask, subnet)
		}
		if gateway.IsValid() {
			w.putIPs(OptRouter, gateway)
		}
		if len(dns) > 0 {
			w.putIPs(OptDNSServers, dns...)
		}
	}
	if w.err != nil {
		return 0, w.err
	}
	return w.n, nil
}

// parseReply implements spec.md §4.2's parse_reply: it returns a MessageType
// and Settings only when p is a reply, its xid matches, and the first six
// bytes of chaddr match mac. Any other packet is "not applicable", reported
// via the bool return rather than an error.
func parseReply(p Packet, mac [6]byte, xid uint32) (MessageType, Settings, bool) {
	if p.Op() != OpReply || p.XID() != xid || *p.CHAddrMAC() != mac {
		return 0, Settings{}, false
	}

	var (
		mt       MessageType
		haveType bool
		settings Settings
		dns      []netip.Addr
	)
	err := p.ForEachOption(func(code OptNum, data []byte) error {
		switch {
		case code == OptMessageType && len(data) == 1:
			mt = MessageType(data[0])
			haveType = true
		case code == OptServerIdentification && len(data) == 4:
			settings.ServerIP = netip.AddrFrom4([4]byte(data))
		case code == OptSubnetMask && len(data) == 4:
			settings.Subnet = netip.AddrFrom4([4]byte(data))
		case code == OptRouter && len(data) >= 4:
			settings.Router = netip.AddrFrom4([4]byte(data[:4]))
		case code == OptDNSServers:
			for i := 0; i+4 <= len(data); i += 4 {
				dns = append(dns, netip.AddrFrom4([4]byte(data[i:i+4])))
			}
		case code == OptIPAddressLeaseTime && len(data) == 4:
			settings.LeaseSeconds = binary.BigEndian.Uint32(data)
			settings.HasLease = true
		}
		return nil
	})
	if err != nil || !haveType {
		return 0, Settings{}, false
	}

	settings.IP = netip.AddrFrom4(*p.YIAddr())
	if len(dns) > 0 {
		settings.DNSPrimary = dns[0]
	}
	if len(dns) > 1 {
		settings.DNSSecondary = dns[1]
	}
	return mt, settings, true
}
