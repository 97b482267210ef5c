package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/screamrouter/screamrouter/internal/audio"
)

// structValidator holds no per-call state beyond its cached struct-tag
// reflection, so one instance is shared across every Validate call.
var structValidator = validator.New()

// Validate checks Source's own struct-tag invariants (volume/delay/
// timeshift ranges, required name) in isolation — group membership and
// cycle detection are the solver's job, not validation's.
func (s Source) Validate() error {
	if err := structValidator.Struct(s); err != nil {
		return fmt.Errorf("%w: source %q: %v", audio.ErrConfigRejected, s.Name, err)
	}
	return nil
}

// Validate checks Sink's own struct-tag invariants: required name and
// sample rate, bit depth in {16,24,32}, channel count in [1,8], volume and
// timeshift ranges. This is the single enforcement point for rejecting a
// sink with zero channels or an invalid bit depth.
func (s Sink) Validate() error {
	if err := structValidator.Struct(s); err != nil {
		return fmt.Errorf("%w: sink %q: %v", audio.ErrConfigRejected, s.Name, err)
	}
	return nil
}

// Validate checks Route's own struct-tag invariants, including the
// timeshift_sec <= 0 sign convention (0 = live, negative = past).
func (r Route) Validate() error {
	if err := structValidator.Struct(r); err != nil {
		return fmt.Errorf("%w: route %q: %v", audio.ErrConfigRejected, r.Name, err)
	}
	return nil
}

// Validate checks every Source, Sink, and Route in the graph and stops at
// the first violation, matching the ConfigRejected contract: the whole
// transaction is rejected with a description of the first violation, and
// the caller must not have touched any live state yet.
func (d DesiredState) Validate() error {
	for _, s := range d.Sources {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	for _, s := range d.Sinks {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	for _, r := range d.Routes {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	return nil
}
