package provision

import (
	"path/filepath"
	"strings"

	"github.com/keithlinneman/edgesite/internal/xerrors"
)

// DefaultPrefix namespaces resource names so List can tell edgesite's
// programs apart from anything else in the account.
const DefaultPrefix = "edgesite-"

const (
	maxLabel = 63
	maxHost  = 253
)

// labelSep stands in for "." inside resource names, which only allow
// [a-z0-9_-]. Host labels never contain "_", so the mapping reverses cleanly.
const labelSep = "_"

// SiteIdentity names one deployed site.
type SiteIdentity struct {
	Subdomain    string
	BaseDomain   string
	ResourceName string
}

func (s SiteIdentity) Host() string { return s.Subdomain + "." + s.BaseDomain }

// Pattern is the route pattern bound to the resource.
func (s SiteIdentity) Pattern() string { return s.Host() + "/*" }

func (s SiteIdentity) URL() string { return "https://" + s.Host() }

// ResolveIdentity picks the subdomain from input when given, otherwise from
// the folder's base name. Input may be a full URL or host under baseDomain.
func ResolveIdentity(input, folder, baseDomain, prefix string) (SiteIdentity, error) {
	baseDomain = normalizeBase(baseDomain)
	if baseDomain == "" {
		return SiteIdentity{}, xerrors.New("base domain is required")
	}

	var sub string
	if strings.TrimSpace(input) != "" {
		sub = normalizeName(input, baseDomain)
		if sub == "" {
			return SiteIdentity{}, xerrors.Newf("name %q does not contain a subdomain", input)
		}
	} else {
		sub = slugFolder(folder)
		if sub == "" {
			return SiteIdentity{}, xerrors.Newf("cannot derive a subdomain from folder %q, pass --name", folder)
		}
	}

	if sub == baseDomain {
		return SiteIdentity{}, xerrors.Newf("name %q is the base domain itself, not a subdomain of it", input)
	}
	if err := validHostLabels(sub + "." + baseDomain); err != nil {
		return SiteIdentity{}, err
	}

	name := resourceName(prefix, sub)
	if err := validResourceName(name); err != nil {
		return SiteIdentity{}, err
	}

	return SiteIdentity{
		Subdomain:    sub,
		BaseDomain:   baseDomain,
		ResourceName: name,
	}, nil
}

func normalizeBase(baseDomain string) string {
	return strings.Trim(strings.ToLower(strings.TrimSpace(baseDomain)), ".")
}

func resourceName(prefix, sub string) string {
	return prefix + strings.ReplaceAll(sub, ".", labelSep)
}

// subdomainOf reverses resourceName. ok is false for names outside prefix.
func subdomainOf(prefix, name string) (string, bool) {
	rest, ok := strings.CutPrefix(name, prefix)
	if !ok || rest == "" {
		return "", false
	}
	return strings.ReplaceAll(rest, labelSep, "."), true
}

func validResourceName(name string) error {
	for i := 0; i < len(name); i++ {
		c := name[i]
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') && c != '-' && c != '_' {
			return xerrors.Newf("resource name %q has invalid character %q, use lower-case letters, digits, '-' or '_' in the prefix", name, c)
		}
	}
	return nil
}

// normalizeName strips a scheme, any path and trailing slashes, and the
// base domain suffix from a user-supplied name.
func normalizeName(in, baseDomain string) string {
	s := strings.ToLower(strings.TrimSpace(in))
	for _, scheme := range []string{"https://", "http://"} {
		if strings.HasPrefix(s, scheme) {
			s = s[len(scheme):]
			break
		}
	}
	s = strings.TrimRight(s, "/")
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[:i]
	}
	if i := strings.Index(s, "."+baseDomain); i >= 0 {
		s = s[:i]
	}
	return strings.Trim(s, ".")
}

// slugFolder lowercases the folder's base name and collapses every run of
// characters outside [a-z0-9.-] into a single "-".
func slugFolder(folder string) string {
	if folder == "" {
		return ""
	}
	base := filepath.Base(filepath.Clean(folder))
	if base == "." || base == string(filepath.Separator) {
		return ""
	}

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(base) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '.' || r == '-' {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.Trim(b.String(), "-.")
}

func validHostLabels(host string) error {
	if len(host) > maxHost {
		return xerrors.Newf("host %q is longer than %d characters", host, maxHost)
	}
	for _, label := range strings.Split(host, ".") {
		if label == "" || len(label) > maxLabel {
			return xerrors.Newf("host %q has an empty or over-long label", host)
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return xerrors.Newf("label %q in host %q starts or ends with '-'", label, host)
		}
		for i := 0; i < len(label); i++ {
			c := label[i]
			if (c < 'a' || c > 'z') && (c < '0' || c > '9') && c != '-' {
				return xerrors.Newf("label %q in host %q has invalid character %q", label, host, c)
			}
		}
	}
	return nil
}
