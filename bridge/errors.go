package bridge

import "errors"

var (
	// ErrNoDialer is returned when a Bridge is constructed without a Dialer.
	//
	// This indicates a configuration error. A Dialer is required in order to
	// open the device channel on "open".
	ErrNoDialer = errors.New("no dialer configured")

	// ErrNoHost is returned when a Bridge is constructed without a host
	// channel.
	ErrNoHost = errors.New("no host channel")

	// ErrInvalidCapacity is returned by ConfigBuilder.Build when a line or
	// response capacity is too small to hold a terminator.
	ErrInvalidCapacity = errors.New("capacity must be at least 3 bytes")

	// ErrInvalidTiming is returned by ConfigBuilder.Build when a delay,
	// interval or idle poll count is negative.
	ErrInvalidTiming = errors.New("timings must not be negative")

	// ErrNotConnected is returned when a Dialer reports success but hands
	// back no connection.
	ErrNotConnected = errors.New("device not connected")

	// ErrAlreadyClosed is returned when Close is called on a Bridge or a
	// channel that has already been closed.
	ErrAlreadyClosed = errors.New("already closed")

	// ErrLoopRunning is returned when Loop is called while another Loop is
	// still running on the same Bridge.
	ErrLoopRunning = errors.New("loop already running")

	// ErrCapacityExceeded is returned by LineBuffer.TryAppend when the byte
	// would leave no room for the terminator.
	ErrCapacityExceeded = errors.New("capacity exceeded")
)
