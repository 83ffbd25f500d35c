package windowlimit

import "errors"

var (
	// ErrInvalidConfig is returned by New and Builder.Build when the window
	// or the request budget is not positive.
	ErrInvalidConfig = errors.New("windowlimit: invalid configuration")

	// ErrStoreUnavailable wraps every failure of the counter store. The
	// request was neither accepted nor rejected; the host decides whether to
	// fail open or closed.
	ErrStoreUnavailable = errors.New("windowlimit: store unavailable")

	// ErrEmptyKey is returned when a request produced an empty client key.
	ErrEmptyKey = errors.New("windowlimit: empty key")

	// ErrResetNotSupported is returned by Reset when the store cannot forget
	// individual keys.
	ErrResetNotSupported = errors.New("windowlimit: store does not support reset")
)
