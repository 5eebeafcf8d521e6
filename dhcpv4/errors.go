package dhcpv4

import "fmt"

// FormatErrorKind distinguishes the ways a byte buffer fails to parse as a
// well-formed DHCP packet. See spec.md §4.1 and §4.5.
type FormatErrorKind uint8

const (
	_ FormatErrorKind = iota
	// FormatShortBuffer: buffer shorter than the fixed BOOTP header plus the
	// four magic-cookie bytes, or too small to hold an option being encoded.
	FormatShortBuffer
	// FormatMissingCookie: the four bytes at the expected cookie offset do
	// not match the DHCP magic cookie.
	FormatMissingCookie
	// FormatTruncatedOption: an option's declared length runs past the end
	// of the buffer.
	FormatTruncatedOption
	// FormatMissingTerminator: the options region ended without an End (255)
	// option.
	FormatMissingTerminator
	// FormatBadOptionLength: an option's length field is inconsistent with
	// the option's semantics (reserved for callers; unused by the codec
	// itself, which only ever raises FormatTruncatedOption for length
	// issues).
	FormatBadOptionLength
)

func (k FormatErrorKind) String() string {
	switch k {
	case FormatShortBuffer:
		return "buffer too small"
	case FormatMissingCookie:
		return "missing or wrong magic cookie"
	case FormatTruncatedOption:
		return "truncated option"
	case FormatMissingTerminator:
		return "missing end option"
	case FormatBadOptionLength:
		return "unexpected option length"
	default:
		return "unknown format error"
	}
}

// FormatError reports why a packet failed to decode or encode. It is the
// Format variant carried by OpError.
type FormatError struct {
	Kind FormatErrorKind
}

func (e *FormatError) Error() string {
	return "dhcpv4: " + e.Kind.String()
}

// ErrorKind distinguishes the outcomes of a client/server operation, mirroring
// original_source's `enum Error<E> { Io(E), Format(dhcp::Error), Timeout, Nak }`.
type ErrorKind uint8

const (
	_ ErrorKind = iota
	KindIO
	KindFormat
	KindTimeout
	KindNak
)

// OpError is the unified error type returned by Client and Server operations.
// It is generic over nothing at the type level (Go has no E type parameter
// here because the transport error is simply wrapped); callers use
// errors.Is/errors.As to inspect it, and errors.Unwrap to reach a wrapped
// transport error.
type OpError struct {
	Kind   ErrorKind
	Format *FormatError
	Err    error // non-nil for KindIO: the underlying transport error.
}

func (e *OpError) Error() string {
	switch e.Kind {
	case KindIO:
		return fmt.Sprintf("dhcpv4: transport error: %v", e.Err)
	case KindFormat:
		return fmt.Sprintf("dhcpv4: %v", e.Format)
	case KindTimeout:
		return "dhcpv4: timed out waiting for reply"
	case KindNak:
		return "dhcpv4: server sent NAK"
	default:
		return "dhcpv4: unknown error"
	}
}

func (e *OpError) Unwrap() error {
	switch e.Kind {
	case KindIO:
		return e.Err
	case KindFormat:
		return e.Format
	}
	return nil
}

// Is allows errors.Is(err, ErrTimeout) and errors.Is(err, ErrNak) to match an
// *OpError of the corresponding kind, without requiring callers to unwrap or
// type-assert.
func (e *OpError) Is(target error) bool {
	switch target {
	case ErrTimeout:
		return e.Kind == KindTimeout
	case ErrNak:
		return e.Kind == KindNak
	}
	return false
}

// Sentinel values for use with errors.Is against an operation's returned
// *OpError. Client operations return them directly for the timeout and NAK
// outcomes; errors.Is also matches any other *OpError of the same kind.
var (
	ErrTimeout = &OpError{Kind: KindTimeout}
	ErrNak     = &OpError{Kind: KindNak}
)

func ioError(err error) *OpError { return &OpError{Kind: KindIO, Err: err} }

func formatError(fe *FormatError) *OpError {
	return &OpError{Kind: KindFormat, Format: fe}
}
