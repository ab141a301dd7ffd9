package gic

import "errors"

var (
	// ErrNotFound means no GICv3/GICv4 answered at the configured address.
	ErrNotFound = errors.New("gicv3: controller not found")
	// ErrInvalidArgument rejects an out-of-range vector, IPI or flag.
	ErrInvalidArgument = errors.New("gicv3: invalid argument")
	// ErrNotSupported marks requests this controller generation cannot serve.
	ErrNotSupported = errors.New("gicv3: not supported")
	// ErrBadState marks a lifecycle call made out of order.
	ErrBadState = errors.New("gicv3: bad state")
	// ErrPrecondition marks a violated hardware precondition.
	ErrPrecondition = errors.New("gicv3: precondition violated")
)
