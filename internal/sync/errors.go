package sync

import "errors"

var (
	ErrAckTimeout = errors.New("sync: ack timeout")
	ErrTornDown   = errors.New("sync: connector has been torn down")
)
