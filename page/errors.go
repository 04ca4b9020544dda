package page

import (
	"errors"
)

var (
	// ErrProtocolViolation is returned when a collaborator produces
	// a page that breaks the paging contract: a negative or NaN
	// request charge, a negative response size or a resumption
	// state issued for a range other than the one requested.
	ErrProtocolViolation = errors.New("paging protocol violation")
)
