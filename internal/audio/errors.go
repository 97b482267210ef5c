// Package audio holds the error kinds shared across the audio plane.
// Data-plane errors never propagate past the component that detects them —
// they degrade to silence and increment a counter. Only ConfigRejected
// crosses into the control plane.
package audio

import "errors"

var (
	// ErrMalformedPacket: header invalid or length mismatch. Dropped, counted.
	ErrMalformedPacket = errors.New("screamrouter: malformed packet")

	// ErrUnknownSourceTag: receiver has data for a tag with no subscribing path.
	ErrUnknownSourceTag = errors.New("screamrouter: unknown source tag")

	// ErrBufferUnderrun: timeshift read returned no packet; substitute silence.
	ErrBufferUnderrun = errors.New("screamrouter: timeshift buffer underrun")

	// ErrResampler: resampler numerical failure; reinitialize and emit silence.
	ErrResampler = errors.New("screamrouter: resampler error")

	// ErrSinkSend: UDP send errno on egress.
	ErrSinkSend = errors.New("screamrouter: sink send error")

	// ErrConfigRejected: desired state violates an invariant; whole transaction rejected.
	ErrConfigRejected = errors.New("screamrouter: configuration rejected")

	// ErrFatalReceiver: receiver socket closed unexpectedly; supervisor restarts it.
	ErrFatalReceiver = errors.New("screamrouter: fatal receiver error")
)
