package config

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"

	"github.com/a8m/envsubst"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"go.viam.com/stereo/logging"
	"go.viam.com/stereo/stereo/ipmatch"
)

// Read reads a config from the given file. ${VAR} references are replaced from the environment
// before decoding. Files ending in .yaml or .yml are decoded as YAML, anything else as JSON.
func Read(
	ctx context.Context,
	filePath string,
	logger logging.Logger,
) (*Config, error) {
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	return FromReader(ctx, filePath, bytes.NewReader(buf), logger)
}

// FromReader reads a config from the given reader and specifies
// where, if applicable, the file the reader originated from.
func FromReader(
	ctx context.Context,
	originalPath string,
	r io.Reader,
	logger logging.Logger,
) (*Config, error) {
	// Sections present in the file overlay the defaults field by field.
	defaults := ipmatch.DefaultAlignmentConfig()
	cfg := Config{
		ConfigFilePath: originalPath,
		Matching:       defaults.Matching,
		Homography:     defaults.Homography,
		Filter:         defaults.Filter,
	}
	if err := decode(originalPath, r, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode Config")
	}
	if err := cfg.Validate("config"); err != nil {
		return nil, err
	}
	logger.CDebugw(ctx, "read config", "path", originalPath, "session", cfg.Session.Type)
	return &cfg, nil
}

// DecodeFile decodes any JSON or YAML file into v after environment substitution.
func DecodeFile(filePath string, v interface{}) error {
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return err
	}
	return decode(filePath, bytes.NewReader(buf), v)
}

func decode(path string, r io.Reader, v interface{}) error {
	if isYAML(path) {
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		return dec.Decode(v)
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}
