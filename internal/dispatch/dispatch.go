// Package dispatch resolves result handlers from explicit registrations.
//
// A target declares which function handles which capability set by returning
// registrations from CapabilityHandlers. Resolution picks the single registration
// whose capability set is exactly the requested one (by canonical key, so order and
// repetition do not matter). There is no runtime method discovery.
//
//	func (s *Screen) CapabilityHandlers() []dispatch.Registration {
//		return []dispatch.Registration{
//			{Name: "onCamera", Capabilities: []string{"CAMERA"}, Handler: s.onCamera},
//			{Name: "onMedia", Capabilities: []string{"CAMERA", "MICROPHONE"}, Handler: s.onMedia},
//		}
//	}
//
// A handler is either func(capability.ResultSet) or func(capability.ResultSet) error.
package dispatch

import (
	"errors"
	"fmt"

	"github.com/roach88/consent/internal/capability"
)

var (
	// ErrNoMatchingHandler is returned when zero or several registrations match.
	ErrNoMatchingHandler = errors.New("no matching handler")

	// ErrInvalidHandlerSignature is returned when a matched handler has the wrong shape.
	ErrInvalidHandlerSignature = errors.New("invalid handler signature")
)

// Func is a resolved result handler.
type Func func(capability.ResultSet) error

// Registration binds one handler to one exact capability set.
type Registration struct {
	// Name labels the handler in logs and errors.
	Name string

	// Capabilities is the exact set this handler serves.
	Capabilities []string

	// Handler must be func(capability.ResultSet) or func(capability.ResultSet) error.
	Handler any
}

// Target is any value that declares its result handlers.
type Target interface {
	CapabilityHandlers() []Registration
}

// Adapt converts a registered handler value into a Func.
func Adapt(name string, handler any) (Func, error) {
	switch fn := handler.(type) {
	case func(capability.ResultSet):
		if fn == nil {
			break
		}
		return func(rs capability.ResultSet) error {
			fn(rs)
			return nil
		}, nil
	case func(capability.ResultSet) error:
		if fn == nil {
			break
		}
		return Func(fn), nil
	case Func:
		if fn == nil {
			break
		}
		return fn, nil
	}
	return nil, fmt.Errorf("%w: %s is %T, want a single capability.ResultSet parameter",
		ErrInvalidHandlerSignature, name, handler)
}

// Resolve finds the handler on target registered for exactly the requested set.
func Resolve(target Target, requested ...string) (Func, error) {
	if target == nil {
		return nil, fmt.Errorf("%w: nil target", ErrNoMatchingHandler)
	}
	want, err := capability.Key(requested...)
	if err != nil {
		return nil, err
	}

	var matched []Registration
	for _, reg := range target.CapabilityHandlers() {
		key, err := capability.Key(reg.Capabilities...)
		if err != nil {
			// A malformed registration can never match a valid request.
			continue
		}
		if key == want {
			matched = append(matched, reg)
		}
	}

	switch len(matched) {
	case 0:
		return nil, fmt.Errorf("%w: %T has no handler for %s", ErrNoMatchingHandler, target, want)
	case 1:
		return Adapt(handlerName(matched[0]), matched[0].Handler)
	default:
		return nil, fmt.Errorf("%w: %T has %d handlers for %s", ErrNoMatchingHandler, target, len(matched), want)
	}
}

func handlerName(reg Registration) string {
	if reg.Name != "" {
		return reg.Name
	}
	return "handler for " + capability.Set(reg.Capabilities).Key()
}
