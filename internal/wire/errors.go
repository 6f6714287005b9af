package wire

import "errors"

// ErrMalformed indicates a packet violates the DNS wire format in a way
// that requires the whole datagram to be dropped (spec.md section 7,
// "Per-packet malformed").
var ErrMalformed = errors.New("wire: malformed dns packet")

// ErrTruncated indicates a read would run past the end of the buffer.
var ErrTruncated = errors.New("wire: truncated dns packet")
