package cfg

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/keithlinneman/edgesite/internal/log"
)

const (
	DefaultAPIBaseURL         = "https://api.cloudflare.com/client/v4"
	DefaultPrefix             = "edgesite-"
	DefaultPlaceholderAddress = "100::"
	EnvPrefix                 = "EDGESITE_"
)

type App struct {
	LogJSON              bool
	LogLevel             string
	IncludeErrorLinks    bool
	MaxErrorLinks        int
	APIBaseURL           string
	RequestTimeout       time.Duration
	APIRate              float64
	Prefix               string
	PlaceholderAddress   string
	CredentialsFile      string
	EnableTracing        bool
	OTLPEndpoint         string
	TraceSample          float64
	PushgatewayURL       string
	ArchiveBucket        string
	ArchivePrefix        string
	ArchiveSSMPrefix     string
	ArchiveSigningKeyARN string
	ServePort            int
	EnablePyroscope      bool
	PyroServer           string
	PyroTenantID         string
}

// Register binds all config fields to the given FlagSet with defaults inline
func Register(fs *pflag.FlagSet, c *App) {
	fs.BoolVar(&c.LogJSON, "log-json", false, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.BoolVar(&c.IncludeErrorLinks, "include-error-links", false, "Include error links in log messages")
	fs.IntVar(&c.MaxErrorLinks, "max-error-links", 5, "max error chain depth (1..64)")
	fs.StringVar(&c.APIBaseURL, "api-base-url", DefaultAPIBaseURL, "edge platform API base url")
	fs.DurationVar(&c.RequestTimeout, "request-timeout", 30*time.Second, "timeout for a single API request")
	fs.Float64Var(&c.APIRate, "api-rate", 4, "max API requests per second (0 disables pacing)")
	fs.StringVar(&c.Prefix, "prefix", DefaultPrefix, "resource name prefix for deployed scripts")
	fs.StringVar(&c.PlaceholderAddress, "placeholder-address", DefaultPlaceholderAddress, "AAAA content for the proxied DNS record")
	fs.StringVar(&c.CredentialsFile, "credentials-file", "", "credentials ini file (default $HOME/.edgesite/credentials.ini)")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (gRPC) (host:port)")
	fs.Float64Var(&c.TraceSample, "trace-sample", 1.0, "trace sampling ratio (0..1)")
	fs.StringVar(&c.PushgatewayURL, "pushgateway-url", "", "prometheus pushgateway to push deploy metrics to")
	fs.StringVar(&c.ArchiveBucket, "archive-bucket", "", "s3 bucket to archive deployed releases in (empty disables)")
	fs.StringVar(&c.ArchivePrefix, "archive-prefix", "edgesite/releases", "s3 key prefix for archived releases")
	fs.StringVar(&c.ArchiveSSMPrefix, "archive-ssm-prefix", "/edgesite", "ssm parameter prefix for release pointers")
	fs.StringVar(&c.ArchiveSigningKeyARN, "archive-signing-key-arn", "", "KMS key ARN used to sign archived bundles")
	fs.IntVar(&c.ServePort, "port", 8787, "preview server listen TCP port (1..65535)")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing Pyroscope data from the preview server")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")
}

// FillFromEnv sets any flag not explicitly passed on the CLI from
// environment variables. Flag "foo-bar" maps to PREFIX_FOO_BAR.
// Precedence: cli flag > env var > default.
func FillFromEnv(fs *pflag.FlagSet, prefix string, logf func(string, ...any)) {
	explicit := make(map[string]bool)
	fs.Visit(func(f *pflag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *pflag.Flag) {
		key := prefix + strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_")
		envVal, envSet := os.LookupEnv(key)
		if !envSet {
			return
		}
		if explicit[f.Name] {
			if logf != nil {
				logf("flag --%s: cli value %q overrides env %s=%q", f.Name, f.Value.String(), key, envVal)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, envVal); err != nil {
			_ = fs.Set(f.Name, prev)
			f.Changed = false
			if logf != nil {
				logf("flag --%s: ignoring invalid env %s=%q: %v", f.Name, key, envVal, err)
			}
		}
	})
}

// Validate checks that config values are within expected ranges and formats.
// Returns an error describing all invalid fields, or nil if all valid.
func Validate(c App) error {
	var errs []error

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err))
	}
	if c.IncludeErrorLinks {
		if c.MaxErrorLinks < 1 || c.MaxErrorLinks > 64 {
			errs = append(errs, fmt.Errorf("MAX_ERROR_LINKS must be 1..64 (got %d)", c.MaxErrorLinks))
		}
	}

	// API
	if u, err := url.Parse(c.APIBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("API_BASE_URL must be a URL (got %q)", c.APIBaseURL))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("REQUEST_TIMEOUT must be positive (got %s)", c.RequestTimeout))
	}
	if c.APIRate < 0 {
		errs = append(errs, fmt.Errorf("API_RATE must be >= 0 (got %g)", c.APIRate))
	}

	// Resources
	if c.Prefix == "" {
		errs = append(errs, fmt.Errorf("PREFIX is required"))
	} else if strings.ContainsAny(c.Prefix, "/ .") {
		errs = append(errs, fmt.Errorf("PREFIX may not contain '/', '.' or spaces (got %q)", c.Prefix))
	}
	if ip := net.ParseIP(c.PlaceholderAddress); ip == nil || ip.To4() != nil {
		errs = append(errs, fmt.Errorf("PLACEHOLDER_ADDRESS must be an IPv6 address (got %q)", c.PlaceholderAddress))
	}

	// Tracing
	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample))
	}
	// grpc exporter wants host:port, no scheme
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT required when ENABLE_TRACING=true"))
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err))
		}
	}

	if c.PushgatewayURL != "" {
		if u, err := url.Parse(c.PushgatewayURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PUSHGATEWAY_URL must be a URL (got %q)", c.PushgatewayURL))
		}
	}

	// Archive
	if c.ArchiveBucket != "" {
		if strings.Trim(c.ArchivePrefix, "/") == "" {
			errs = append(errs, fmt.Errorf("ARCHIVE_PREFIX is required when ARCHIVE_BUCKET is set"))
		}
		if !strings.HasPrefix(c.ArchiveSSMPrefix, "/") {
			errs = append(errs, fmt.Errorf("ARCHIVE_SSM_PREFIX must start with / (got %q)", c.ArchiveSSMPrefix))
		}
	} else if c.ArchiveSigningKeyARN != "" {
		errs = append(errs, fmt.Errorf("ARCHIVE_SIGNING_KEY_ARN set without ARCHIVE_BUCKET"))
	}

	if c.ServePort < 1 || c.ServePort > 65535 {
		errs = append(errs, fmt.Errorf("invalid PORT %d (must be 1..65535)", c.ServePort))
	}

	// Pyroscope
	if c.EnablePyroscope {
		if c.PyroServer == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER required when ENABLE_PYROSCOPE=true"))
		} else if u, err := url.Parse(c.PyroServer); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER must be a URL (got %q)", c.PyroServer))
		}
		if c.PyroTenantID == "" {
			errs = append(errs, fmt.Errorf("PYRO_TENANT required when ENABLE_PYROSCOPE=true"))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
