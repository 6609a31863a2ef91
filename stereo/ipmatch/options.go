package ipmatch

import (
	"math/rand"
	"time"

	"go.viam.com/stereo/logging"
	"go.viam.com/stereo/transform"
)

// options configures the robust fitting and filtering stages.
type options struct {
	seed       int64
	seeded     bool
	iterations int
	logger     logging.Logger
}

// Option configures how homographies are fit and matches are filtered.
type Option interface {
	apply(*options)
}

// funcOption wraps a function that modifies options into an
// implementation of the Option interface.
type funcOption struct {
	f func(*options)
}

func (fdo *funcOption) apply(do *options) {
	fdo.f(do)
}

func newFuncOption(f func(*options)) *funcOption {
	return &funcOption{
		f: f,
	}
}

// WithSeed returns an Option which makes random sample consensus reproducible.
func WithSeed(seed int64) Option {
	return newFuncOption(func(o *options) {
		o.seed = seed
		o.seeded = true
	})
}

// WithIterations returns an Option which sets the number of random sample consensus trials.
func WithIterations(iterations int) Option {
	return newFuncOption(func(o *options) {
		o.iterations = iterations
	})
}

// WithLogger returns an Option which sets the logger that receives per stage diagnostics.
func WithLogger(logger logging.Logger) Option {
	return newFuncOption(func(o *options) {
		o.logger = logger
	})
}

func newOptions(opts []Option) *options {
	o := &options{iterations: transform.DefaultRANSACIterations}
	for _, opt := range opts {
		opt.apply(o)
	}
	if o.iterations <= 0 {
		o.iterations = transform.DefaultRANSACIterations
	}
	if o.logger == nil {
		o.logger = logging.NewBlankLogger("ipmatch")
	}
	return o
}

// newRand returns a fresh source for one fit so concurrent fits never share state.
func (o *options) newRand() *rand.Rand {
	if o.seeded {
		return rand.New(rand.NewSource(o.seed))
	}
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

// withOffset returns a copy whose seed, if any, is shifted by offset.
func (o *options) withOffset(offset int64) *options {
	cp := *o
	cp.seed += offset
	return &cp
}
