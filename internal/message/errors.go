package message

import (
	mdnserrors "github.com/beacon-mdns/beacon/internal/errors"
)

var (
	errNotAQuery = &mdnserrors.WireFormatError{
		Operation: "append fragment",
		Offset:    -1,
		Message:   "both messages must be queries to append fragments",
	}
	errNotTruncated = &mdnserrors.WireFormatError{
		Operation: "append fragment",
		Offset:    -1,
		Message:   "first message must have TC set to accept a continuation",
	}
)
