package shpipe

import "errors"

var (
	ERR_NIL_LAUNCHER  error = errors.New("nil launcher")
	ERR_EMPTY_COMMAND error = errors.New("empty command")
)
