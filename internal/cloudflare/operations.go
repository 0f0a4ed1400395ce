package cloudflare

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/keithlinneman/edgesite/internal/xerrors"
)

// Operation names reported to the Observer.
const (
	OpUploadScript    = "upload_script"
	OpDeleteScript    = "delete_script"
	OpListScripts     = "list_scripts"
	OpCreateRoute     = "create_route"
	OpQueryDNSRecord  = "query_dns_record"
	OpCreateDNSRecord = "create_dns_record"
	OpPurgeCache      = "purge_cache"
)

// UploadScript creates or replaces the script called name.
func (c *Client) UploadScript(ctx context.Context, name string, program []byte) Result {
	res, _ := c.do(ctx, OpUploadScript, http.MethodPut,
		c.accountPath("/workers/scripts/"+url.PathEscape(name)),
		"application/javascript", program)
	return res
}

func (c *Client) DeleteScript(ctx context.Context, name string) Result {
	res, _ := c.do(ctx, OpDeleteScript, http.MethodDelete,
		c.accountPath("/workers/scripts/"+url.PathEscape(name)), "", nil)
	return res
}

// ListScripts returns every script name on the account.
func (c *Client) ListScripts(ctx context.Context) ([]string, Result) {
	res, raw := c.do(ctx, OpListScripts, http.MethodGet, c.accountPath("/workers/scripts"), "", nil)
	if !res.Success {
		return nil, res
	}
	var scripts []struct {
		ID string `json:"id"`
	}
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &scripts); err != nil {
			return nil, decodeFailure(res, xerrors.Wrap(err, "decode script list"))
		}
	}
	names := make([]string, 0, len(scripts))
	for _, s := range scripts {
		names = append(names, s.ID)
	}
	return names, res
}

type routeRequest struct {
	Pattern string `json:"pattern"`
	Script  string `json:"script"`
}

// CreateRoute binds pattern to script. The platform refuses duplicates.
func (c *Client) CreateRoute(ctx context.Context, pattern, script string) Result {
	res, _ := c.do(ctx, OpCreateRoute, http.MethodPost, c.zonePath("/workers/routes"),
		"application/json", jsonBody(routeRequest{Pattern: pattern, Script: script}))
	return res
}

// QueryDNSRecord counts records whose name is exactly name.
func (c *Client) QueryDNSRecord(ctx context.Context, name string) (int, Result) {
	q := url.Values{"name": {name}}
	res, raw := c.do(ctx, OpQueryDNSRecord, http.MethodGet, c.zonePath("/dns_records?"+q.Encode()), "", nil)
	if !res.Success {
		return 0, res
	}
	var records []json.RawMessage
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &records); err != nil {
			return 0, decodeFailure(res, xerrors.Wrap(err, "decode dns records"))
		}
	}
	return len(records), res
}

type dnsRecordRequest struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content string `json:"content"`
	Proxied bool   `json:"proxied"`
}

// CreateDNSRecord adds an AAAA record.
func (c *Client) CreateDNSRecord(ctx context.Context, name, content string, proxied bool) Result {
	res, _ := c.do(ctx, OpCreateDNSRecord, http.MethodPost, c.zonePath("/dns_records"),
		"application/json", jsonBody(dnsRecordRequest{Type: "AAAA", Name: name, Content: content, Proxied: proxied}))
	return res
}

// PurgeCache drops everything cached for the zone.
func (c *Client) PurgeCache(ctx context.Context) Result {
	res, _ := c.do(ctx, OpPurgeCache, http.MethodPost, c.zonePath("/purge_cache"),
		"application/json", []byte(`{"purge_everything":true}`))
	return res
}

func decodeFailure(res Result, err error) Result {
	res.Success = false
	res.Err = err
	res.Errors = []string{err.Error()}
	return res
}
