package session

import (
	"slices"
	"sync"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"go.viam.com/stereo/camera"
	"go.viam.com/stereo/cartography"
	"go.viam.com/stereo/logging"
	"go.viam.com/stereo/utils"
)

type (
	// A ResolveDatum returns the datum a session of some type matches against. Some types derive
	// it from the left camera.
	ResolveDatum func(cfg *Config, left camera.Model) (cartography.Datum, error)

	// A Registration describes one type of stereo session.
	Registration struct {
		// Name is the session type, e.g. "isis".
		Name string
		// Alignments are the supported alignment methods. The first one is the default.
		Alignments []AlignmentMethod
		// Datum resolves the session datum from its config.
		Datum ResolveDatum
	}
)

// Supports returns whether sessions of this type can align with the method.
func (reg Registration) Supports(method AlignmentMethod) bool {
	return slices.Contains(reg.Alignments, method)
}

// Registry is an immutable set of session types.
type Registry struct {
	types map[string]Registration
}

// NewRegistry builds a registry from the given types. Names must be unique and every type needs at
// least one alignment method and a datum resolver.
func NewRegistry(types ...Registration) (*Registry, error) {
	reg := &Registry{types: make(map[string]Registration, len(types))}
	for _, t := range types {
		if t.Name == "" {
			return nil, errors.New("session type must have a name")
		}
		if _, ok := reg.types[t.Name]; ok {
			return nil, errors.Errorf("duplicate session type %q", t.Name)
		}
		if len(t.Alignments) == 0 {
			return nil, errors.Errorf("session type %q supports no alignment method", t.Name)
		}
		if t.Datum == nil {
			return nil, errors.Errorf("session type %q has no datum resolver", t.Name)
		}
		t.Alignments = slices.Clone(t.Alignments)
		reg.types[t.Name] = t
	}
	return reg, nil
}

var defaultRegistry = sync.OnceValue(func() *Registry {
	reg, err := NewRegistry(
		Registration{
			Name:       "pinhole",
			Alignments: []AlignmentMethod{AlignHomography, AlignEpipolar, AlignNone},
			Datum:      configuredDatum,
		},
		Registration{
			Name:       "isis",
			Alignments: []AlignmentMethod{AlignHomography, AlignNone},
			Datum:      targetDatum,
		},
		Registration{
			Name:       "rpc",
			Alignments: []AlignmentMethod{AlignHomography, AlignNone},
			Datum:      configuredDatum,
		},
		Registration{
			Name:       "dg",
			Alignments: []AlignmentMethod{AlignHomography, AlignNone},
			Datum:      configuredDatum,
		},
	)
	if err != nil {
		panic(err)
	}
	return reg
})

// DefaultRegistry returns the registry of the built-in session types: pinhole, isis, rpc and dg.
func DefaultRegistry() *Registry {
	return defaultRegistry()
}

// Lookup returns the registration of a session type.
func (r *Registry) Lookup(name string) (Registration, bool) {
	reg, ok := r.types[name]
	return reg, ok
}

// Names returns the registered session types in sorted order.
func (r *Registry) Names() []string {
	names := lo.Keys(r.types)
	slices.Sort(names)
	return names
}

// New constructs a session of the named type.
func (r *Registry) New(name string, cfg *Config, logger logging.Logger) (Session, error) {
	reg, ok := r.types[name]
	if !ok {
		return nil, errors.Errorf("unknown session type %q, expected one of %v", name, r.Names())
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if err := cfg.Validate("session"); err != nil {
		return nil, err
	}
	method := cfg.AlignmentMethod
	if method == "" {
		method = reg.Alignments[0]
	}
	if !reg.Supports(method) {
		return nil, &UnsupportedAlignmentError{Session: name, Method: method}
	}
	if cfg.Datum != nil {
		if err := cfg.Datum.Validate(); err != nil {
			return nil, err
		}
	}
	if logger == nil {
		logger = logging.NewBlankLogger("session")
	}
	return &stereoSession{
		name:   name,
		method: method,
		cfg:    cfg,
		datum:  reg.Datum,
		logger: logger.Sublogger(name),
	}, nil
}

// configuredDatum uses the configured datum and falls back to WGS84.
func configuredDatum(cfg *Config, _ camera.Model) (cartography.Datum, error) {
	if cfg.Datum != nil {
		return *cfg.Datum, nil
	}
	return cartography.WGS84, nil
}

// TargetBody is implemented by cameras that know the radii of the body they observe.
type TargetBody interface {
	TargetRadii() r3.Vector
}

// targetDatum derives a biaxial datum from the target body radii, taken from the config or else
// from the left camera.
func targetDatum(cfg *Config, left camera.Model) (cartography.Datum, error) {
	var radii r3.Vector
	if len(cfg.TargetRadii) == 3 {
		radii = r3.Vector{X: cfg.TargetRadii[0], Y: cfg.TargetRadii[1], Z: cfg.TargetRadii[2]}
	} else {
		body, err := utils.AssertType[TargetBody](left)
		if err != nil {
			return cartography.Datum{}, errors.Wrap(err, "invalid left camera, need target_radii or a camera that knows its target")
		}
		radii = body.TargetRadii()
	}
	datum := cartography.NewDatumFromRadii("target", radii)
	return datum, datum.Validate()
}
