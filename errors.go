package kad

import (
	"github.com/james-lawrence/kad/internal/errorsx"
)

const (
	ErrNoPeers        = errorsx.String("no peers available")
	ErrNotFound       = errorsx.String("record not found")
	ErrUnknownCommand = errorsx.String("unknown command")
	// ErrRecordOutdated is returned when a peer holds a newer record for the
	// key being written.
	ErrRecordOutdated = errorsx.String("newer record exists")
)
