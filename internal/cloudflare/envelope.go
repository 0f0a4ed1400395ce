package cloudflare

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/keithlinneman/edgesite/internal/xerrors"
)

// Result is the outcome of one API call.
type Result struct {
	Success bool
	// Errors holds platform messages verbatim
	Errors []string
	Status int
	// Err is set for transport and decoding failures
	Err error
}

// Message joins Errors, falling back to Err.
func (r Result) Message() string {
	if len(r.Errors) > 0 {
		return strings.Join(r.Errors, "; ")
	}
	if r.Err != nil {
		return r.Err.Error()
	}
	if !r.Success {
		return fmt.Sprintf("request failed with HTTP %d", r.Status)
	}
	return ""
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type envelope struct {
	Success *bool           `json:"success"`
	Errors  []apiError      `json:"errors"`
	Error   string          `json:"error"`
	Result  json.RawMessage `json:"result"`
}

const maxSnippet = 512

// parseEnvelope resolves every response shape the platform uses: success
// with errors[].message, a bare error string, or a body that is not JSON.
func parseEnvelope(status int, body []byte) (Result, json.RawMessage) {
	res := Result{Status: status}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		snippet := strings.TrimSpace(string(body))
		if len(snippet) > maxSnippet {
			n := maxSnippet
			for n > 0 && !utf8.RuneStart(snippet[n]) {
				n--
			}
			snippet = snippet[:n]
		}
		res.Err = xerrors.Wrapf(err, "unparsable response (HTTP %d)", status)
		if snippet != "" {
			res.Errors = []string{snippet}
		}
		return res, nil
	}

	for _, e := range env.Errors {
		if msg := strings.TrimSpace(e.Message); msg != "" {
			res.Errors = append(res.Errors, msg)
		}
	}
	if len(res.Errors) == 0 && env.Error != "" {
		res.Errors = []string{env.Error}
	}

	ok2xx := status >= 200 && status < 300
	res.Success = ok2xx && env.Success != nil && *env.Success
	if !res.Success && len(res.Errors) == 0 && res.Err == nil {
		res.Errors = []string{fmt.Sprintf("request failed with HTTP %d", status)}
	}
	return res, env.Result
}
