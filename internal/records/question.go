package records

import "github.com/beacon-mdns/beacon/internal/protocol"

// Question is a DNS query-section entry: a name/type/class triple with no
// payload, plus the unicast-response (QU) bit.
type Question struct {
	Name   string
	Type   protocol.Type
	Class  protocol.Class
	Unique bool // QU bit: requester prefers a unicast reply
}

// Matches reports whether r would answer q: same name (case-insensitive),
// and q's type is ANY or equals r's type, and classes agree.
func (q *Question) Matches(r *Record) bool {
	if normalizedName(q.Name) != normalizedName(r.Name) {
		return false
	}
	if q.Type != protocol.TypeANY && q.Type != r.Type {
		return false
	}
	return q.Class.Base() == r.Class.Base()
}
