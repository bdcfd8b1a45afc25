package responder

import (
	"regexp"

	mdnserrors "github.com/beacon-mdns/beacon/internal/errors"
)

// Service describes an mDNS/DNS-SD service instance to publish.
type Service struct {
	// InstanceName is the human-readable instance label (e.g. "Kitchen Printer").
	InstanceName string
	// ServiceType is "_service._proto" (e.g. "_http._tcp"), no domain suffix.
	ServiceType string
	// Port is the service's listening port.
	Port uint16
	// TXT carries optional key/value metadata per RFC 6763 §6.
	TXT map[string]string
}

var serviceTypePattern = regexp.MustCompile(`^_[a-zA-Z0-9-]+\._(tcp|udp)$`)

// Validate checks s against RFC 6762/6763's naming and size constraints.
func (s *Service) Validate() error {
	if s.InstanceName == "" {
		return &mdnserrors.ValidationError{Field: "instanceName", Message: "must not be empty"}
	}
	if len(s.InstanceName) > 63 {
		return &mdnserrors.ValidationError{Field: "instanceName", Value: len(s.InstanceName), Message: "exceeds 63 octets"}
	}
	if !serviceTypePattern.MatchString(s.ServiceType) {
		return &mdnserrors.ValidationError{Field: "serviceType", Value: s.ServiceType, Message: `must match "_service._tcp" or "_service._udp"`}
	}
	if s.Port == 0 {
		return &mdnserrors.ValidationError{Field: "port", Value: s.Port, Message: "must be in range 1-65535"}
	}
	if size := txtSize(s.TXT); size > 1300 {
		return &mdnserrors.ValidationError{Field: "txt", Value: size, Message: "exceeds 1300 bytes (RFC 6763 §6.2)"}
	}
	return nil
}

func txtSize(txt map[string]string) int {
	total := 0
	for k, v := range txt {
		total += 1 + len(k) + 1 + len(v)
	}
	return total
}
