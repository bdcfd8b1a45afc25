// Package contract tests the public API surface of beacon/querier and
// beacon/responder: construction, validation, and lifecycle behavior any
// conforming implementation must exhibit.
package contract

import (
	goerrors "errors"
	"strings"
	"testing"

	mdnserrors "github.com/beacon-mdns/beacon/internal/errors"
	"github.com/beacon-mdns/beacon/responder"
)

func TestServiceValidateRejectsEmptyInstanceName(t *testing.T) {
	svc := &responder.Service{ServiceType: "_http._tcp", Port: 80}
	err := svc.Validate()
	if err == nil {
		t.Fatal("expected a validation error for an empty instance name")
	}
	var verr *mdnserrors.ValidationError
	if !goerrors.As(err, &verr) {
		t.Fatalf("got %T, want *errors.ValidationError", err)
	}
}

func TestServiceValidateRejectsMalformedServiceType(t *testing.T) {
	svc := &responder.Service{InstanceName: "My Service", ServiceType: "http.tcp", Port: 80}
	if err := svc.Validate(); err == nil {
		t.Fatal("expected a validation error for a service type missing the leading underscore/transport suffix")
	}
}

func TestServiceValidateRejectsZeroPort(t *testing.T) {
	svc := &responder.Service{InstanceName: "My Service", ServiceType: "_http._tcp", Port: 0}
	if err := svc.Validate(); err == nil {
		t.Fatal("expected a validation error for port 0")
	}
}

func TestServiceValidateRejectsOversizedTXT(t *testing.T) {
	huge := strings.Repeat("x", 1400)
	svc := &responder.Service{
		InstanceName: "My Service",
		ServiceType:  "_http._tcp",
		Port:         80,
		TXT:          map[string]string{"blob": huge},
	}
	if err := svc.Validate(); err == nil {
		t.Fatal("expected a validation error for a TXT record exceeding 1300 bytes (RFC 6763 §6.2)")
	}
}

func TestServiceValidateAcceptsWellFormedService(t *testing.T) {
	svc := &responder.Service{
		InstanceName: "Kitchen Printer",
		ServiceType:  "_printer._tcp",
		Port:         631,
		TXT:          map[string]string{"rp": "queue1"},
	}
	if err := svc.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}
