package dhcpv4

import "encoding/binary"

// Fixed BOOTP header layout. See RFC 2131 figure 1 and spec.md §3/§6.
const (
	sizeOp       = 4  // op, htype, hlen, hops
	sizeXID      = 4
	sizeSecs     = 2
	sizeFlags    = 2
	sizeAddrs    = 16 // ciaddr, yiaddr, siaddr, giaddr, 4 bytes each
	sizeCHAddr   = 16
	sizeSName    = 64
	sizeBootFile = 128

	headerSize = sizeOp + sizeXID + sizeSecs + sizeFlags + sizeAddrs + sizeCHAddr + sizeSName + sizeBootFile // 236

	cookieOffset = headerSize // 236
	// OptionsOffset is the byte offset of the options region within the
	// fixed-layout BOOTP packet, i.e. right after the magic cookie.
	OptionsOffset = cookieOffset + 4 // 240

	offXID    = 4
	offSecs   = 8
	offFlags  = 10
	offCIAddr = 12
	offYIAddr = 16
	offSIAddr = 20
	offGIAddr = 24
	offCHAddr = 28
)

// MagicCookie is the four-byte value that must prefix the options region,
// see RFC 2132.
const MagicCookie uint32 = 0x63825363

// Packet is a borrowed view over a DHCP packet's bytes, fixed-header fields
// first, options region last. Decoding borrows the caller's buffer for the
// lifetime of use; encoding writes into a caller-supplied buffer. Mirrors
// teacher's Frame type (dhcpv4/frame.go) but validates fully at Decode time
// instead of lazily, per spec.md §4.1.
type Packet struct {
	buf []byte
}

func (p Packet) Op() Op      { return Op(p.buf[0]) }
func (p Packet) SetOp(op Op) { p.buf[0] = byte(op) }

func (p Packet) SetHardware(htype, hlen, hops byte) {
	p.buf[1], p.buf[2], p.buf[3] = htype, hlen, hops
}

func (p Packet) XID() uint32       { return binary.BigEndian.Uint32(p.buf[offXID:]) }
func (p Packet) SetXID(xid uint32) { binary.BigEndian.PutUint32(p.buf[offXID:], xid) }

func (p Packet) Secs() uint16        { return binary.BigEndian.Uint16(p.buf[offSecs:]) }
func (p Packet) SetSecs(secs uint16) { binary.BigEndian.PutUint16(p.buf[offSecs:], secs) }

func (p Packet) Flags() uint16         { return binary.BigEndian.Uint16(p.buf[offFlags:]) }
func (p Packet) SetFlags(flags uint16) { binary.BigEndian.PutUint16(p.buf[offFlags:], flags) }

// CIAddr is the client's current IP address, meaningful when renewing.
func (p Packet) CIAddr() *[4]byte { return (*[4]byte)(p.buf[offCIAddr : offCIAddr+4]) }

// YIAddr is "your" (client) IP address, set by the server.
func (p Packet) YIAddr() *[4]byte { return (*[4]byte)(p.buf[offYIAddr : offYIAddr+4]) }

// SIAddr is the next-server address (unused by this core beyond round-trip).
func (p Packet) SIAddr() *[4]byte { return (*[4]byte)(p.buf[offSIAddr : offSIAddr+4]) }

// GIAddr is the relay-agent address (unused by this core beyond round-trip).
func (p Packet) GIAddr() *[4]byte { return (*[4]byte)(p.buf[offGIAddr : offGIAddr+4]) }

// CHAddr returns the full 16-byte hardware address field.
func (p Packet) CHAddr() *[16]byte { return (*[16]byte)(p.buf[offCHAddr : offCHAddr+16]) }

// CHAddrMAC returns the first 6 bytes of CHAddr, the Ethernet MAC for
// htype=1, hlen=6.
func (p Packet) CHAddrMAC() *[6]byte { return (*[6]byte)(p.buf[offCHAddr : offCHAddr+6]) }

// magicCookie returns the cookie value found at the expected offset, valid
// only once Decode or SetMagicCookie has run.
func (p Packet) magicCookie() uint32 { return binary.BigEndian.Uint32(p.buf[cookieOffset:]) }

// SetMagicCookie writes the DHCP magic cookie at its fixed offset.
func (p Packet) SetMagicCookie() { binary.BigEndian.PutUint32(p.buf[cookieOffset:], MagicCookie) }

// ClearHeader zeros the fixed header and cookie, leaving the options region
// untouched.
func (p Packet) ClearHeader() {
	for i := range p.buf[:OptionsOffset] {
		p.buf[i] = 0
	}
}

// OptionsPayload returns the full remaining buffer available for options.
func (p Packet) OptionsPayload() []byte { return p.buf[OptionsOffset:] }

// Bytes returns the raw backing buffer of the packet.
func (p Packet) Bytes() []byte { return p.buf }

// NewPacket wraps dst as an empty packet for encoding. The caller must
// ClearHeader it before writing fields.
func NewPacket(dst []byte) (Packet, error) {
	if len(dst) < OptionsOffset {
		return Packet{}, &FormatError{Kind: FormatShortBuffer}
	}
	return Packet{buf: dst}, nil
}

// Decode parses buf as a DHCP packet, validating the fixed header length,
// magic cookie, and the entire options region (every option's length must
// fit in the remaining buffer, and an End option must terminate the region)
// before returning. The returned Packet borrows buf for its entire lifetime;
// callers must not mutate buf while the Packet is in use. See spec.md §4.1.
func Decode(buf []byte) (Packet, error) {
	if len(buf) < OptionsOffset {
		return Packet{}, &FormatError{Kind: FormatShortBuffer}
	}
	p := Packet{buf: buf}
	if p.magicCookie() != MagicCookie {
		return Packet{}, &FormatError{Kind: FormatMissingCookie}
	}
	if err := validateOptions(p.OptionsPayload()); err != nil {
		return Packet{}, err
	}
	return p, nil
}

// validateOptions walks the options region once at decode time, ensuring
// every option's length fits within the buffer and that an End option
// terminates the region before the buffer runs out.
func validateOptions(opts []byte) error {
	i := 0
	for {
		if i >= len(opts) {
			return &FormatError{Kind: FormatMissingTerminator}
		}
		code := OptNum(opts[i])
		if code == OptEnd {
			return nil
		}
		if code == OptWordAligned {
			i++
			continue
		}
		if i+1 >= len(opts) {
			return &FormatError{Kind: FormatTruncatedOption}
		}
		length := int(opts[i+1])
		if i+2+length > len(opts) {
			return &FormatError{Kind: FormatTruncatedOption}
		}
		i += 2 + length
	}
}

// ForEachOption iterates over the packet's options in wire order, invoking
// fn with each option's code and payload slice (a view into the packet's
// backing buffer). The packet must have come from Decode, which guarantees
// this walk cannot run off the end of the buffer. Iteration stops early if
// fn returns a non-nil error, which is returned to the caller unchanged
// (matching teacher's early-exit convention in dhcpv4/client.go's
// getMessageType, there using io.EOF as the sentinel).
func (p Packet) ForEachOption(fn func(code OptNum, data []byte) error) error {
	opts := p.OptionsPayload()
	i := 0
	for i < len(opts) {
		code := OptNum(opts[i])
		if code == OptEnd {
			return nil
		}
		if code == OptWordAligned {
			i++
			continue
		}
		length := int(opts[i+1])
		data := opts[i+2 : i+2+length]
		if err := fn(code, data); err != nil {
			return err
		}
		i += 2 + length
	}
	return nil
}

// EncodeOptions writes opts (already TLV-encoded in order by the Options
// builders in options.go) followed by the End option into the packet's
// options region, returning the total encoded packet length
// (OptionsOffset + len(opts) + 1). It fails with a FormatError carrying
// FormatShortBuffer if the packet's buffer cannot hold opts plus the
// terminator, per spec.md §4.1.
func (p Packet) EncodeOptions(opts []byte) (int, error) {
	dst := p.OptionsPayload()
	if len(dst) < len(opts)+1 {
		return 0, &FormatError{Kind: FormatShortBuffer}
	}
	n := copy(dst, opts)
	dst[n] = byte(OptEnd)
	n++
	return OptionsOffset + n, nil
}
