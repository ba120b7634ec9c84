package agent

import "errors"

var (
	// ErrUnauthorized is returned when the manager rejects the device token.
	// The device has to enroll again with a new code.
	ErrUnauthorized = errors.New("agent: device token rejected, re-run enroll")

	// ErrMissingPrivateKey is returned when the manager holds no private key
	// for the device and none is on disk.
	ErrMissingPrivateKey = errors.New("agent: no private key on disk and none provided by the manager")

	// ErrNoToken is returned when the token file does not exist.
	ErrNoToken = errors.New("agent: no device token, run enroll first")

	errAgentStarted = errors.New("agent: already started")
)
