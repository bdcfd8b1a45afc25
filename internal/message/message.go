// Package message implements the RFC 1035 DNS wire format: header, name
// compression, and per-record-type payload encode/decode, bounded by the
// sender-negotiated UDP payload size RFC 6762 §17 describes.
//
// Decode failures come in two severities: a MalformedRecordError is
// attached to a single Answers/Authorities/Additionals entry and decoding
// continues at that record's declared end; a WireFormatError aborts the
// whole message (a bad header, a name that loops or runs off the buffer).
package message

import (
	"github.com/beacon-mdns/beacon/internal/protocol"
	"github.com/beacon-mdns/beacon/internal/records"
)

// Header is the fixed 12-byte DNS message header per RFC 1035 §4.1.1.
type Header struct {
	ID      uint16
	Flags   uint16
	QDCount uint16
	ANCount uint16
	NSCount uint16
	ARCount uint16
}

// IsQuery reports whether the QR bit is clear.
func (h Header) IsQuery() bool { return h.Flags&protocol.FlagQR == 0 }

// IsResponse reports whether the QR bit is set.
func (h Header) IsResponse() bool { return h.Flags&protocol.FlagQR != 0 }

// Authoritative reports whether the AA bit is set.
func (h Header) Authoritative() bool { return h.Flags&protocol.FlagAA != 0 }

// Truncated reports whether the TC bit is set, meaning more records for
// this logical query follow in a subsequent datagram.
func (h Header) Truncated() bool { return h.Flags&protocol.FlagTC != 0 }

// RCode extracts the 4-bit response code.
func (h Header) RCode() uint16 { return h.Flags & protocol.RCodeMask }

// Message is a decoded (or to-be-encoded) DNS message: a header plus the
// four record sections.
type Message struct {
	Header      Header
	Questions   []records.Question
	Answers     []*records.Record
	Authorities []*records.Record
	Additionals []*records.Record
}

// MalformedRecordErrors collects non-fatal per-record decode failures that
// occurred while reading a Message; the message itself is still usable.
type MalformedRecordErrors []error

func (e MalformedRecordErrors) Error() string {
	if len(e) == 0 {
		return "no malformed records"
	}
	msg := e[0].Error()
	if len(e) > 1 {
		msg += " (and more)"
	}
	return msg
}

// Append concatenates next's sections onto m, for reassembling a logical
// query that RFC 6762 §18.5 allowed to span multiple truncated datagrams.
// Both messages must be queries and m must have its TC bit set; otherwise
// Append returns an error and leaves m unmodified.
func (m *Message) Append(next *Message) error {
	if !m.Header.IsQuery() || !next.Header.IsQuery() {
		return errNotAQuery
	}
	if !m.Header.Truncated() {
		return errNotTruncated
	}
	m.Questions = append(m.Questions, next.Questions...)
	m.Answers = append(m.Answers, next.Answers...)
	m.Authorities = append(m.Authorities, next.Authorities...)
	m.Additionals = append(m.Additionals, next.Additionals...)
	m.Header.Flags = next.Header.Flags // adopt continuation's TC state
	m.Header.QDCount = uint16(len(m.Questions))
	m.Header.ANCount = uint16(len(m.Answers))
	m.Header.NSCount = uint16(len(m.Authorities))
	m.Header.ARCount = uint16(len(m.Additionals))
	return nil
}
