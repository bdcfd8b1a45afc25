package message

import (
	"encoding/binary"

	mdnserrors "github.com/beacon-mdns/beacon/internal/errors"
	"github.com/beacon-mdns/beacon/internal/protocol"
	"github.com/beacon-mdns/beacon/internal/records"
)

// MessageWriter encodes a Message into its wire form, compressing names
// against every name previously written to the same datagram.
type MessageWriter struct {
	enc *nameEncoder
}

// NewMessageWriter returns a writer with an empty output buffer.
func NewMessageWriter() *MessageWriter {
	return &MessageWriter{enc: newNameEncoder()}
}

// WriteMessage encodes m in full and returns the resulting datagram. It does
// not enforce the UDP payload size bound; callers that need to split a
// response across multiple datagrams should build multiple Messages instead.
func (w *MessageWriter) WriteMessage(m *Message) ([]byte, error) {
	w.enc = newNameEncoder()

	header := make([]byte, 12)
	binary.BigEndian.PutUint16(header[0:], m.Header.ID)
	binary.BigEndian.PutUint16(header[2:], m.Header.Flags)
	binary.BigEndian.PutUint16(header[4:], uint16(len(m.Questions)))
	binary.BigEndian.PutUint16(header[6:], uint16(len(m.Answers)))
	binary.BigEndian.PutUint16(header[8:], uint16(len(m.Authorities)))
	binary.BigEndian.PutUint16(header[10:], uint16(len(m.Additionals)))
	w.enc.buf = append(w.enc.buf, header...)

	for _, q := range m.Questions {
		if err := w.writeQuestion(q); err != nil {
			return nil, err
		}
	}
	for _, r := range m.Answers {
		if err := w.writeRecord(r); err != nil {
			return nil, err
		}
	}
	for _, r := range m.Authorities {
		if err := w.writeRecord(r); err != nil {
			return nil, err
		}
	}
	for _, r := range m.Additionals {
		if err := w.writeRecord(r); err != nil {
			return nil, err
		}
	}
	return w.enc.buf, nil
}

func (w *MessageWriter) writeQuestion(q records.Question) error {
	if err := w.enc.encodeName(q.Name, false); err != nil {
		return err
	}
	cls := q.Class
	if q.Unique {
		cls = cls.WithUnique(true)
	}
	w.enc.buf = appendUint16(w.enc.buf, uint16(q.Type))
	w.enc.buf = appendUint16(w.enc.buf, uint16(cls))
	return nil
}

func (w *MessageWriter) writeRecord(r *records.Record) error {
	if err := w.enc.encodeName(r.Name, false); err != nil {
		return err
	}
	w.enc.buf = appendUint16(w.enc.buf, uint16(r.Type))
	w.enc.buf = appendUint16(w.enc.buf, uint16(r.Class))
	w.enc.buf = appendUint32(w.enc.buf, r.TTL)

	lenPos := len(w.enc.buf)
	w.enc.buf = appendUint16(w.enc.buf, 0) // placeholder RDLENGTH
	rdataStart := len(w.enc.buf)

	if err := w.writePayload(r); err != nil {
		return err
	}
	rdlength := len(w.enc.buf) - rdataStart
	if rdlength > 0xffff {
		return &mdnserrors.ValidationError{Field: "rdata", Value: r.Name, Message: "record data exceeds 65535 bytes"}
	}
	binary.BigEndian.PutUint16(w.enc.buf[lenPos:], uint16(rdlength))
	return nil
}

func (w *MessageWriter) writePayload(r *records.Record) error {
	switch r.Type {
	case protocol.TypeA:
		if r.Address == nil || r.Address.IP == nil {
			return &mdnserrors.ValidationError{Field: "address", Value: r.Name, Message: "A record requires an address"}
		}
		if v4 := r.Address.IP.To4(); v4 != nil {
			w.enc.buf = append(w.enc.buf, v4...)
		} else if v6 := r.Address.IP.To16(); v6 != nil {
			// Synthesize: an IPv6-only address written into an A slot keeps
			// only its last 4 bytes.
			w.enc.buf = append(w.enc.buf, v6[12:]...)
		} else {
			return &mdnserrors.ValidationError{Field: "address", Value: r.Name, Message: "A record requires a valid address"}
		}
	case protocol.TypeAAAA:
		if r.Address == nil || r.Address.IP == nil {
			return &mdnserrors.ValidationError{Field: "address", Value: r.Name, Message: "AAAA record requires an address"}
		}
		if v4 := r.Address.IP.To4(); v4 != nil {
			// Synthesize: an IPv4 address written into an AAAA slot is
			// padded with 12 leading zero bytes, not the ::ffff: prefix.
			w.enc.buf = append(w.enc.buf, make([]byte, 12)...)
			w.enc.buf = append(w.enc.buf, v4...)
		} else if v6 := r.Address.IP.To16(); v6 != nil {
			w.enc.buf = append(w.enc.buf, v6...)
		} else {
			return &mdnserrors.ValidationError{Field: "address", Value: r.Name, Message: "AAAA record requires a valid address"}
		}
	case protocol.TypePTR:
		if r.Pointer == nil {
			return &mdnserrors.ValidationError{Field: "pointer", Value: r.Name, Message: "PTR record requires a target"}
		}
		return w.enc.encodeName(r.Pointer.Target, false)
	case protocol.TypeTXT:
		return w.writeTXT(r)
	case protocol.TypeSRV:
		if r.Service == nil {
			return &mdnserrors.ValidationError{Field: "service", Value: r.Name, Message: "SRV record requires service data"}
		}
		w.enc.buf = appendUint16(w.enc.buf, r.Service.Priority)
		w.enc.buf = appendUint16(w.enc.buf, r.Service.Weight)
		w.enc.buf = appendUint16(w.enc.buf, r.Service.Port)
		return w.enc.encodeName(r.Service.Target, true)
	case protocol.TypeHINFO:
		if r.HostInfo == nil {
			return &mdnserrors.ValidationError{Field: "hostinfo", Value: r.Name, Message: "HINFO record requires host data"}
		}
		return writeCharString(w, r.HostInfo.CPU+" "+r.HostInfo.OS)
	case protocol.TypeOPT:
		return w.writeOpt(r)
	default:
		if r.Text != nil {
			w.enc.buf = append(w.enc.buf, r.Text.Raw...)
		}
	}
	return nil
}

func (w *MessageWriter) writeTXT(r *records.Record) error {
	if r.Text == nil || len(r.Text.Raw) == 0 {
		w.enc.buf = append(w.enc.buf, 0) // RFC 6763 §6.1: empty TXT is a single zero-length string
		return nil
	}
	w.enc.buf = append(w.enc.buf, r.Text.Raw...)
	return nil
}

func writeCharString(w *MessageWriter, s string) error {
	if len(s) > 255 {
		return &mdnserrors.ValidationError{Field: "character-string", Value: s, Message: "exceeds 255 bytes"}
	}
	w.enc.buf = append(w.enc.buf, byte(len(s)))
	w.enc.buf = append(w.enc.buf, s...)
	return nil
}

func (w *MessageWriter) writeOpt(r *records.Record) error {
	if r.Opt == nil {
		return nil
	}
	for _, attr := range r.Opt.Attributes {
		w.enc.buf = appendUint16(w.enc.buf, attr.Code)
		w.enc.buf = appendUint16(w.enc.buf, uint16(len(attr.Data)))
		w.enc.buf = append(w.enc.buf, attr.Data...)
	}
	return nil
}

func appendUint16(buf []byte, v uint16) []byte {
	return append(buf, byte(v>>8), byte(v))
}

func appendUint32(buf []byte, v uint32) []byte {
	return append(buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}
