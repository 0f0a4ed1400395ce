// Package siteconfig reads the optional per-site project file kept in the
// root of a deployable directory.
package siteconfig

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/keithlinneman/edgesite/internal/xerrors"
)

// FileName is a dot-file, so the manifest builder never ships it.
const FileName = ".edgesite.yaml"

type Config struct {
	// Subdomain overrides the folder-derived name when --name is not given
	Subdomain string `yaml:"subdomain"`
	// Exclude holds path.Match globs tested against relative paths and segments
	Exclude []string `yaml:"exclude"`
}

// Load returns the zero Config when root has no project file.
func Load(root string) (Config, error) {
	p := filepath.Join(root, FileName)
	raw, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, xerrors.Wrapf(err, "read %s", p)
	}
	c, err := Parse(raw)
	if err != nil {
		return Config{}, xerrors.Wrapf(err, "parse %s", p)
	}
	return c, nil
}

// Parse decodes strictly; unknown keys are errors.
func Parse(raw []byte) (Config, error) {
	var c Config
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, err
	}
	c.Subdomain = strings.TrimSpace(c.Subdomain)
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	var errs []error
	for _, g := range c.Exclude {
		if strings.TrimSpace(g) == "" {
			errs = append(errs, xerrors.New("exclude: empty pattern"))
			continue
		}
		if _, err := path.Match(g, ""); err != nil {
			errs = append(errs, xerrors.Wrapf(err, "exclude: pattern %q", g))
		}
	}
	return errors.Join(errs...)
}
