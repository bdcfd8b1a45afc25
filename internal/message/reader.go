package message

import (
	"encoding/binary"
	"net"
	"strings"

	mdnserrors "github.com/beacon-mdns/beacon/internal/errors"
	"github.com/beacon-mdns/beacon/internal/protocol"
	"github.com/beacon-mdns/beacon/internal/records"
)

// MessageReader decodes a single DNS message from a UDP payload. It is not
// safe for concurrent use; create one per datagram.
type MessageReader struct {
	buf []byte
	pos int
}

// NewMessageReader wraps buf for decoding.
func NewMessageReader(buf []byte) *MessageReader {
	return &MessageReader{buf: buf}
}

func (r *MessageReader) wireErr(op, msg string) error {
	return &mdnserrors.WireFormatError{Operation: op, Offset: r.pos, Message: msg}
}

func (r *MessageReader) readUint16() (uint16, error) {
	if r.pos+2 > len(r.buf) {
		return 0, r.wireErr("read uint16", "truncated")
	}
	v := binary.BigEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *MessageReader) readUint32() (uint32, error) {
	if r.pos+4 > len(r.buf) {
		return 0, r.wireErr("read uint32", "truncated")
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *MessageReader) readName() (string, error) {
	name, next, err := decodeName(r.buf, r.pos)
	if err != nil {
		return "", err
	}
	r.pos = next
	return name, nil
}

// ReadMessage decodes the header, question section, and the three record
// sections. A malformed header or name fails the whole message
// (WireFormatError); a malformed individual record is skipped (its offset
// advanced to its declared end) and collected into a non-nil
// MalformedRecordErrors returned alongside a still-usable Message.
func (r *MessageReader) ReadMessage() (*Message, error) {
	if len(r.buf) < 12 {
		return nil, r.wireErr("read header", "message shorter than 12-byte header")
	}
	m := &Message{}
	var err error
	if m.Header.ID, err = r.readUint16(); err != nil {
		return nil, err
	}
	if m.Header.Flags, err = r.readUint16(); err != nil {
		return nil, err
	}
	if m.Header.QDCount, err = r.readUint16(); err != nil {
		return nil, err
	}
	if m.Header.ANCount, err = r.readUint16(); err != nil {
		return nil, err
	}
	if m.Header.NSCount, err = r.readUint16(); err != nil {
		return nil, err
	}
	if m.Header.ARCount, err = r.readUint16(); err != nil {
		return nil, err
	}

	var malformed MalformedRecordErrors

	for i := 0; i < int(m.Header.QDCount); i++ {
		q, err := r.readQuestion()
		if err != nil {
			return nil, err
		}
		m.Questions = append(m.Questions, q)
	}

	sections := []struct {
		name  string
		count int
		out   *[]*records.Record
	}{
		{"answer", int(m.Header.ANCount), &m.Answers},
		{"authority", int(m.Header.NSCount), &m.Authorities},
		{"additional", int(m.Header.ARCount), &m.Additionals},
	}
	for _, s := range sections {
		for i := 0; i < s.count; i++ {
			rec, fatal, err := r.readRecord()
			if err != nil {
				if fatal {
					return nil, err
				}
				malformed = append(malformed, &mdnserrors.MalformedRecordError{Section: s.name, Index: i, Message: err.Error()})
				continue
			}
			if rec != nil {
				*s.out = append(*s.out, rec)
			}
		}
	}

	if len(malformed) > 0 {
		return m, malformed
	}
	return m, nil
}

func (r *MessageReader) readQuestion() (records.Question, error) {
	name, err := r.readName()
	if err != nil {
		return records.Question{}, err
	}
	typ, err := r.readUint16()
	if err != nil {
		return records.Question{}, err
	}
	class, err := r.readUint16()
	if err != nil {
		return records.Question{}, err
	}
	cls := protocol.Class(class)
	return records.Question{Name: name, Type: protocol.Type(typ), Class: cls.Base(), Unique: cls.Unique()}, nil
}

// readRecord decodes one resource record. Failures while reading the fixed
// name/type/class/ttl/rdlength fields leave r.pos at an indeterminate
// position (the declared record end isn't known yet) and are fatal to the
// whole message. Once RDLENGTH is known, r.pos is unconditionally advanced
// to the record's declared end before returning, so a payload-decode
// failure past that point is safe to treat as non-fatal: the caller can
// resume at the next record.
func (r *MessageReader) readRecord() (rec *records.Record, fatal bool, err error) {
	name, err := r.readName()
	if err != nil {
		return nil, true, err
	}
	typ, err := r.readUint16()
	if err != nil {
		return nil, true, err
	}
	class, err := r.readUint16()
	if err != nil {
		return nil, true, err
	}
	ttl, err := r.readUint32()
	if err != nil {
		return nil, true, err
	}
	rdlength, err := r.readUint16()
	if err != nil {
		return nil, true, err
	}
	if r.pos+int(rdlength) > len(r.buf) {
		r.pos = len(r.buf)
		return nil, true, r.wireErr("read record", "RDLENGTH overruns message")
	}
	rdataStart := r.pos
	rdataEnd := r.pos + int(rdlength)
	rdata := r.buf[r.pos:rdataEnd]

	rec = &records.Record{
		Name:  name,
		Type:  protocol.Type(typ),
		Class: protocol.Class(class).Base(),
		TTL:   ttl,
	}
	if protocol.Class(class).Unique() {
		rec.Class = rec.Class.WithUnique(true)
	}

	if err := r.decodePayload(rec, protocol.Type(typ), rdata, rdataStart); err != nil {
		r.pos = rdataEnd
		return nil, false, err
	}
	r.pos = rdataEnd
	return rec, false, nil
}

func (r *MessageReader) decodePayload(rec *records.Record, typ protocol.Type, rdata []byte, rdataStart int) error {
	switch typ {
	case protocol.TypeA:
		if len(rdata) != 4 {
			return r.wireErr("decode A", "expected 4 bytes")
		}
		rec.Address = &records.AddressData{IP: net.IP(append([]byte(nil), rdata...))}
	case protocol.TypeAAAA:
		if len(rdata) != 16 {
			return r.wireErr("decode AAAA", "expected 16 bytes")
		}
		rec.Address = &records.AddressData{IP: net.IP(append([]byte(nil), rdata...))}
	case protocol.TypePTR:
		target, _, err := decodeName(r.buf, rdataStart)
		if err != nil {
			return err
		}
		rec.Pointer = &records.PointerData{Target: target}
	case protocol.TypeTXT:
		rec.Text = &records.TextData{Raw: append([]byte(nil), rdata...)}
	case protocol.TypeSRV:
		if len(rdata) < 6 {
			return r.wireErr("decode SRV", "truncated SRV rdata")
		}
		target, _, err := decodeName(r.buf, rdataStart+6)
		if err != nil {
			return err
		}
		rec.Service = &records.ServiceData{
			Priority: binary.BigEndian.Uint16(rdata[0:2]),
			Weight:   binary.BigEndian.Uint16(rdata[2:4]),
			Port:     binary.BigEndian.Uint16(rdata[4:6]),
			Target:   target,
		}
	case protocol.TypeHINFO:
		combined, _, err := readCharString(rdata)
		if err != nil {
			return err
		}
		cpu, osStr := combined, ""
		if i := strings.IndexByte(combined, ' '); i >= 0 {
			cpu, osStr = combined[:i], combined[i+1:]
		}
		rec.HostInfo = &records.HostInfoData{CPU: cpu, OS: osStr}
	case protocol.TypeOPT:
		rec.Opt = decodeOpt(rec.Class, rdata)
	default:
		// Unknown/unsupported type: retained only as an opaque blob via Text
		// so round-tripping through the cache doesn't lose the record.
		rec.Text = &records.TextData{Raw: append([]byte(nil), rdata...)}
	}
	return nil
}

// readCharString reads a length-prefixed character-string per RFC 1035
// §3.3, returning it plus the remaining bytes after it.
func readCharString(buf []byte) (string, []byte, error) {
	if len(buf) == 0 {
		return "", nil, &mdnserrors.WireFormatError{Operation: "read character-string", Offset: -1, Message: "empty buffer"}
	}
	n := int(buf[0])
	if 1+n > len(buf) {
		return "", nil, &mdnserrors.WireFormatError{Operation: "read character-string", Offset: -1, Message: "truncated character-string"}
	}
	return string(buf[1 : 1+n]), buf[1+n:], nil
}

func decodeOpt(class protocol.Class, rdata []byte) *records.OptData {
	opt := &records.OptData{UDPPayloadSize: uint16(class)}
	i := 0
	for i+4 <= len(rdata) {
		code := binary.BigEndian.Uint16(rdata[i:])
		length := binary.BigEndian.Uint16(rdata[i+2:])
		i += 4
		if i+int(length) > len(rdata) {
			break
		}
		opt.Attributes = append(opt.Attributes, records.OptAttribute{Code: code, Data: append([]byte(nil), rdata[i:i+int(length)]...)})
		i += int(length)
	}
	return opt
}
