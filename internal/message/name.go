package message

import (
	"strings"

	mdnserrors "github.com/beacon-mdns/beacon/internal/errors"
	"github.com/beacon-mdns/beacon/internal/protocol"
)

// decodeName decodes a DNS name starting at offset in buf, following
// compression pointers per RFC 1035 §4.1.4. It returns the name in dotted
// form plus the offset of the byte immediately following the name's own
// encoding (i.e. after a pointer's two bytes, not after the jumped-to
// region — a compression jump must not move the caller's read cursor).
//
// Loop prevention: first tracks the lowest offset visited since the start
// of this name. Every pointer jump must target strictly less than first;
// the decoder then lowers first to the jump target. Because first strictly
// decreases on every jump and the buffer is finite, this bounds the number
// of jumps and rejects any cycle, not merely forward references.
func decodeName(buf []byte, offset int) (name string, newOffset int, err error) {
	if offset < 0 || offset >= len(buf) {
		return "", offset, &mdnserrors.WireFormatError{Operation: "decode name", Offset: offset, Message: "offset out of bounds"}
	}

	var labels []string
	pos := offset
	first := offset
	jumped := false

	for {
		if pos >= len(buf) {
			return "", offset, &mdnserrors.WireFormatError{Operation: "decode name", Offset: pos, Message: "unexpected end of message"}
		}
		length := buf[pos]

		if length&protocol.CompressionMask == protocol.CompressionMask {
			if pos+1 >= len(buf) {
				return "", offset, &mdnserrors.WireFormatError{Operation: "decode name", Offset: pos, Message: "truncated compression pointer"}
			}
			pointer := int(buf[pos]&0x3f)<<8 | int(buf[pos+1])
			if pointer >= first {
				return "", offset, &mdnserrors.WireFormatError{Operation: "decode name", Offset: pos, Message: "compression pointer does not point strictly backward"}
			}
			if !jumped {
				newOffset = pos + 2
				jumped = true
			}
			first = pointer
			pos = pointer
			continue
		}

		if length&protocol.CompressionMask == protocol.ExtendedMask {
			return "", offset, &mdnserrors.WireFormatError{Operation: "decode name", Offset: pos, Message: "extended label type not supported"}
		}
		if length&protocol.CompressionMask != 0 {
			return "", offset, &mdnserrors.WireFormatError{Operation: "decode name", Offset: pos, Message: "unsupported label type"}
		}

		if length == 0 {
			if !jumped {
				newOffset = pos + 1
			}
			break
		}

		if int(length) > protocol.MaxLabelLength {
			return "", offset, &mdnserrors.WireFormatError{Operation: "decode name", Offset: pos, Message: "label exceeds 63 bytes"}
		}
		if pos+1+int(length) > len(buf) {
			return "", offset, &mdnserrors.WireFormatError{Operation: "decode name", Offset: pos, Message: "truncated label"}
		}
		labels = append(labels, string(buf[pos+1:pos+1+int(length)]))
		pos += 1 + int(length)
	}

	name = strings.Join(labels, ".")
	if len(name) > 0 {
		name += "."
	} else {
		name = "."
	}
	if len(name) > protocol.MaxNameLength {
		return "", offset, &mdnserrors.WireFormatError{Operation: "decode name", Offset: offset, Message: "name exceeds 255 bytes"}
	}
	return name, newOffset, nil
}

// splitLabels splits a dotted name into its labels, dropping a trailing
// empty label produced by a trailing dot and the root name itself.
func splitLabels(name string) []string {
	name = strings.TrimSuffix(name, ".")
	if name == "" {
		return nil
	}
	return strings.Split(name, ".")
}

// nameEncoder accumulates an encoded message body while tracking
// previously written name suffixes for compression, per RFC 1035 §4.1.4.
type nameEncoder struct {
	buf    []byte
	suffix map[string]uint16 // dotted suffix (lowercased) -> wire offset
}

func newNameEncoder() *nameEncoder {
	return &nameEncoder{suffix: make(map[string]uint16)}
}

// encodeName appends name to the encoder's buffer, emitting a compression
// pointer for the longest suffix already written, unless disableCompression
// is set (RFC 6762 requires raw names for some SRV targets on request).
func (e *nameEncoder) encodeName(name string, disableCompression bool) error {
	labels := splitLabels(name)
	for _, l := range labels {
		if len(l) > protocol.MaxLabelLength {
			return &mdnserrors.ValidationError{Field: "name", Value: name, Message: "label exceeds 63 bytes"}
		}
	}

	for i := 0; i < len(labels); i++ {
		remainder := strings.ToLower(strings.Join(labels[i:], ".")) + "."
		if !disableCompression {
			if off, ok := e.suffix[remainder]; ok && off <= protocol.MaxPointerOffset {
				e.buf = append(e.buf, protocol.CompressionMask|byte(off>>8), byte(off))
				return nil
			}
		}
		if len(e.buf) <= protocol.MaxPointerOffset {
			e.suffix[remainder] = uint16(len(e.buf))
		}
		e.buf = append(e.buf, byte(len(labels[i])))
		e.buf = append(e.buf, labels[i]...)
	}
	e.buf = append(e.buf, 0)
	return nil
}
