package cloudflare

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/keithlinneman/edgesite/internal/credentials"
	"github.com/keithlinneman/edgesite/internal/log"
	"github.com/keithlinneman/edgesite/internal/version"
	"github.com/keithlinneman/edgesite/internal/xerrors"
)

const (
	DefaultBaseURL = "https://api.cloudflare.com/client/v4"
	DefaultTimeout = 30 * time.Second
	DefaultRate    = 4.0
	DefaultBurst   = 4

	maxResponseBytes = 4 << 20
)

// Observer receives the outcome of every call. metrics.Deploy implements it.
type Observer interface {
	ObserveCall(op string, status int, success bool, d time.Duration)
}

type Options struct {
	Credentials credentials.Credentials
	BaseURL     string
	// HTTPClient's transport is wrapped with otelhttp; its Timeout is left alone
	HTTPClient *http.Client
	Timeout    time.Duration
	UserAgent  string
	// Rate is requests per second; zero or negative disables pacing
	Rate     float64
	Burst    int
	Logger   log.Logger
	Observer Observer
}

func (o *Options) setDefaults() {
	if o.BaseURL == "" {
		o.BaseURL = DefaultBaseURL
	}
	o.BaseURL = strings.TrimRight(o.BaseURL, "/")
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.UserAgent == "" {
		o.UserAgent = version.AppName + "/" + version.Get().Version
	}
	if o.Burst <= 0 {
		o.Burst = DefaultBurst
	}
	if o.Logger == nil {
		o.Logger = log.Nop()
	}
}

type Client struct {
	opts    Options
	http    *http.Client
	limiter *rate.Limiter
}

// New refuses to build a client without complete credentials.
func New(opts Options) (*Client, error) {
	if err := opts.Credentials.Validate(); err != nil {
		return nil, err
	}
	opts.setDefaults()

	base := http.DefaultTransport
	if opts.HTTPClient != nil && opts.HTTPClient.Transport != nil {
		base = opts.HTTPClient.Transport
	}
	hc := &http.Client{
		Transport: otelhttp.NewTransport(base,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return "cloudflare " + r.Method
			}),
		),
	}
	if opts.HTTPClient != nil {
		hc.CheckRedirect = opts.HTTPClient.CheckRedirect
		hc.Jar = opts.HTTPClient.Jar
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.Rate), opts.Burst)
	}

	return &Client{opts: opts, http: hc, limiter: limiter}, nil
}

func (c *Client) accountPath(suffix string) string {
	return "/accounts/" + url.PathEscape(c.opts.Credentials.AccountID) + suffix
}

func (c *Client) zonePath(suffix string) string {
	return "/zones/" + url.PathEscape(c.opts.Credentials.ZoneID) + suffix
}

// do sends one request and always returns a Result; it never retries.
func (c *Client) do(ctx context.Context, op, method, path, contentType string, body []byte) (Result, json.RawMessage) {
	start := time.Now()
	res, raw := c.send(ctx, method, path, contentType, body)
	elapsed := time.Since(start)

	if c.opts.Observer != nil {
		c.opts.Observer.ObserveCall(op, res.Status, res.Success, elapsed)
	}
	if res.Success {
		c.opts.Logger.Debug(ctx, "api call", "op", op, "status", res.Status, "duration", elapsed)
	} else {
		c.opts.Logger.Debug(ctx, "api call failed", "op", op, "status", res.Status, "duration", elapsed, "message", res.Message())
	}
	return res, raw
}

func (c *Client) send(ctx context.Context, method, path, contentType string, body []byte) (Result, json.RawMessage) {
	if err := c.limiter.Wait(ctx); err != nil {
		return transportFailure(xerrors.Wrap(err, "wait for rate limiter")), nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.opts.BaseURL+path, rdr)
	if err != nil {
		return transportFailure(xerrors.Wrapf(err, "build %s %s", method, path)), nil
	}
	req.Header.Set("Authorization", "Bearer "+c.opts.Credentials.APIToken)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.opts.UserAgent)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return transportFailure(xerrors.Wrapf(err, "%s %s", method, path)), nil
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		res := transportFailure(xerrors.Wrapf(err, "read %s %s response", method, path))
		res.Status = resp.StatusCode
		return res, nil
	}
	return parseEnvelope(resp.StatusCode, data)
}

func transportFailure(err error) Result {
	return Result{Errors: []string{err.Error()}, Err: err}
}

func jsonBody(v any) []byte {
	// only called with local structs of strings and bools
	b, _ := json.Marshal(v)
	return b
}
