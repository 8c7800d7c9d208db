package wweb

import "errors"

// Sentinel errors for the web-session dispatch path. Only failures that
// prevent producing a DispatchResult surface to callers; presence and
// close failures are logged and swallowed where they happen.
var (
	ErrConnect        = errors.New("connection failed")
	ErrConnectTimeout = errors.New("connection timed out")
	ErrMediaFetch     = errors.New("media fetch failed")
	ErrBadRecipient   = errors.New("invalid recipient")
)
