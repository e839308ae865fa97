package orchestrator

import "errors"

var (
	// ErrNotPersisted: the session has no ID yet, nothing to bind to.
	ErrNotPersisted = errors.New("session not persisted yet")

	// ErrAlreadyBound signals an idempotent start: the session already
	// has a container and the existing binding is left untouched.
	ErrAlreadyBound = errors.New("session already has a container attached")

	// ErrNoContainer signals an idempotent stop: there is nothing to
	// stop.
	ErrNoContainer = errors.New("session has no container attached")

	// ErrCapacity: no host or port left; the caller may retry later.
	ErrCapacity = errors.New("no capacity left on container hosts")

	// ErrConnectivity: the remote channel could not be authenticated or
	// the command could not be delivered.
	ErrConnectivity = errors.New("container host connectivity failure")

	// ErrValidation: the remote command produced unexpected output. The
	// remote side effect may or may not have occurred.
	ErrValidation = errors.New("unexpected output from container host")

	// ErrPersistence: the binding could not be stored after the container
	// started; the orchestrator already attempted to stop it again.
	ErrPersistence = errors.New("failed to persist session binding")

	// ErrUnknownHost: a session references a host that is no longer in
	// the pool configuration.
	ErrUnknownHost = errors.New("container host not found in configuration")
)
