// Package config defines the file based configuration of stereo matching runs.
package config

import (
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/stereo/cartography"
	"go.viam.com/stereo/logging"
	"go.viam.com/stereo/stereo/ipmatch"
	"go.viam.com/stereo/stereo/session"
	"go.viam.com/stereo/vision/keypoints"
)

// A Config describes how image pairs are matched and aligned.
type Config struct {
	ConfigFilePath string `json:"-" yaml:"-"`

	Session    SessionConfig             `json:"session" yaml:"session"`
	Datum      *DatumConfig              `json:"datum,omitempty" yaml:"datum,omitempty"`
	Matching   *keypoints.MatchingConfig `json:"matching,omitempty" yaml:"matching,omitempty"`
	Homography *ipmatch.HomographyConfig `json:"homography,omitempty" yaml:"homography,omitempty"`
	Filter     *ipmatch.FilterConfig     `json:"filter,omitempty" yaml:"filter,omitempty"`

	// Parallelism bounds how many pairs are matched at once. Zero means unbounded.
	Parallelism int    `json:"parallelism,omitempty" yaml:"parallelism,omitempty"`
	LogLevel    string `json:"log_level,omitempty" yaml:"log_level,omitempty"`
}

// SessionConfig selects the session type and its options.
type SessionConfig struct {
	Type           string `json:"type" yaml:"type"`
	session.Config `yaml:",inline"`
}

// DatumConfig is either a well known datum by name or explicit axes.
type DatumConfig struct {
	Name          string  `json:"name,omitempty" yaml:"name,omitempty"`
	SemiMajorAxis float64 `json:"semi_major_axis,omitempty" yaml:"semi_major_axis,omitempty"`
	SemiMinorAxis float64 `json:"semi_minor_axis,omitempty" yaml:"semi_minor_axis,omitempty"`
}

// Datum resolves the configured datum.
func (cfg *DatumConfig) Datum() (cartography.Datum, error) {
	if cfg.SemiMajorAxis == 0 && cfg.SemiMinorAxis == 0 {
		return cartography.NamedDatum(cfg.Name)
	}
	d := cartography.Datum{Name: cfg.Name, SemiMajorAxis: cfg.SemiMajorAxis, SemiMinorAxis: cfg.SemiMinorAxis}
	return d, d.Validate()
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg.Session.Type == "" {
		return utils.NewConfigValidationFieldRequiredError(path+".session", "type")
	}
	if _, ok := session.DefaultRegistry().Lookup(cfg.Session.Type); !ok {
		return utils.NewConfigValidationError(path+".session",
			errors.Errorf("unknown type %q, expected one of %v", cfg.Session.Type, session.DefaultRegistry().Names()))
	}
	if err := cfg.Session.Config.Validate(path + ".session"); err != nil {
		return err
	}
	if cfg.Datum != nil {
		if _, err := cfg.Datum.Datum(); err != nil {
			return utils.NewConfigValidationError(path+".datum", err)
		}
	}
	if err := cfg.Alignment().Validate(path); err != nil {
		return err
	}
	if cfg.Parallelism < 0 {
		return utils.NewConfigValidationError(path, errors.Errorf("parallelism cannot be negative, got %d", cfg.Parallelism))
	}
	if cfg.LogLevel != "" {
		if _, err := logging.LevelFromString(cfg.LogLevel); err != nil {
			return utils.NewConfigValidationError(path, err)
		}
	}
	return nil
}

// Alignment returns the matching, homography and filter sections as one alignment config.
func (cfg *Config) Alignment() *ipmatch.AlignmentConfig {
	return &ipmatch.AlignmentConfig{
		Matching:   cfg.Matching,
		Homography: cfg.Homography,
		Filter:     cfg.Filter,
	}
}

// Level returns the configured log level, info if unset.
func (cfg *Config) Level() logging.Level {
	level, err := logging.LevelFromString(cfg.LogLevel)
	if err != nil {
		return logging.INFO
	}
	return level
}

// NewSession constructs the configured session from the default registry.
func (cfg *Config) NewSession(logger logging.Logger) (session.Session, error) {
	sessCfg := cfg.Session.Config
	if cfg.Datum != nil {
		datum, err := cfg.Datum.Datum()
		if err != nil {
			return nil, err
		}
		sessCfg.Datum = &datum
	}
	sessCfg.Alignment = cfg.Alignment()
	return session.DefaultRegistry().New(cfg.Session.Type, &sessCfg, logger)
}
