// Package credentials loads and stores the four values every remote call
// needs. Values come from an ini file with environment variables filling any
// key the file leaves empty.
package credentials

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/keithlinneman/edgesite/internal/xerrors"
)

const (
	Section = "cloudflare"

	KeyAPIToken   = "api_token"
	KeyAccountID  = "account_id"
	KeyZoneID     = "zone_id"
	KeyBaseDomain = "base_domain"

	EnvAPIToken   = "CLOUDFLARE_API_TOKEN"
	EnvAccountID  = "CLOUDFLARE_ACCOUNT_ID"
	EnvZoneID     = "CLOUDFLARE_ZONE_ID"
	EnvBaseDomain = "EDGESITE_BASE_DOMAIN"
)

// ErrConfigurationMissing is returned by Validate when any value is empty.
var ErrConfigurationMissing = errors.New("configuration missing")

// Credentials is read once at startup and never mutated afterwards.
type Credentials struct {
	APIToken   string
	AccountID  string
	ZoneID     string
	BaseDomain string
}

// DefaultPath is $HOME/.edgesite/credentials.ini
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", xerrors.Wrap(err, "resolve home directory")
	}
	return filepath.Join(home, ".edgesite", "credentials.ini"), nil
}

// Load reads path and fills empty keys through getenv. A missing file is not
// an error; an unreadable or malformed one is.
func Load(path string, getenv func(string) string) (Credentials, error) {
	var c Credentials
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			f, err := ini.Load(path)
			if err != nil {
				return Credentials{}, xerrors.Wrapf(err, "load credentials %s", path)
			}
			sec := f.Section(Section)
			c.APIToken = sec.Key(KeyAPIToken).String()
			c.AccountID = sec.Key(KeyAccountID).String()
			c.ZoneID = sec.Key(KeyZoneID).String()
			c.BaseDomain = sec.Key(KeyBaseDomain).String()
		} else if !errors.Is(err, os.ErrNotExist) {
			return Credentials{}, xerrors.Wrapf(err, "stat credentials %s", path)
		}
	}

	if getenv != nil {
		fill(&c.APIToken, getenv(EnvAPIToken))
		fill(&c.AccountID, getenv(EnvAccountID))
		fill(&c.ZoneID, getenv(EnvZoneID))
		fill(&c.BaseDomain, getenv(EnvBaseDomain))
	}
	return c.normalized(), nil
}

func fill(dst *string, v string) {
	if strings.TrimSpace(*dst) == "" {
		*dst = v
	}
}

func (c Credentials) normalized() Credentials {
	c.APIToken = strings.TrimSpace(c.APIToken)
	c.AccountID = strings.TrimSpace(c.AccountID)
	c.ZoneID = strings.TrimSpace(c.ZoneID)
	c.BaseDomain = strings.Trim(strings.ToLower(strings.TrimSpace(c.BaseDomain)), ".")
	return c
}

// Missing lists the ini key of every empty value, in a stable order.
func (c Credentials) Missing() []string {
	var out []string
	for _, kv := range []struct {
		key, val string
	}{
		{KeyAPIToken, c.APIToken},
		{KeyAccountID, c.AccountID},
		{KeyZoneID, c.ZoneID},
		{KeyBaseDomain, c.BaseDomain},
	} {
		if strings.TrimSpace(kv.val) == "" {
			out = append(out, kv.key)
		}
	}
	return out
}

// Validate wraps ErrConfigurationMissing with the names of the empty keys.
func (c Credentials) Validate() error {
	if missing := c.Missing(); len(missing) > 0 {
		return fmt.Errorf("%w: %s (run 'edgesite configure' or set %s, %s, %s, %s)",
			ErrConfigurationMissing, strings.Join(missing, ", "),
			EnvAPIToken, EnvAccountID, EnvZoneID, EnvBaseDomain)
	}
	return nil
}

// Save merges c into the file at path, keeping unrelated sections, and
// writes it owner-only. Empty fields leave the stored value untouched.
func Save(path string, c Credentials) error {
	f := ini.Empty()
	if _, err := os.Stat(path); err == nil {
		loaded, err := ini.Load(path)
		if err != nil {
			return xerrors.Wrapf(err, "load existing credentials %s", path)
		}
		f = loaded
	}

	c = c.normalized()
	sec := f.Section(Section)
	for _, kv := range []struct {
		key, val string
	}{
		{KeyAPIToken, c.APIToken},
		{KeyAccountID, c.AccountID},
		{KeyZoneID, c.ZoneID},
		{KeyBaseDomain, c.BaseDomain},
	} {
		if kv.val != "" {
			sec.Key(kv.key).SetValue(kv.val)
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return xerrors.Wrap(err, "render credentials")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return xerrors.Wrapf(err, "create %s", filepath.Dir(path))
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return xerrors.Wrapf(err, "write credentials %s", path)
	}
	// WriteFile keeps the mode of an existing file
	if err := os.Chmod(path, 0o600); err != nil {
		return xerrors.Wrapf(err, "chmod credentials %s", path)
	}
	return nil
}
