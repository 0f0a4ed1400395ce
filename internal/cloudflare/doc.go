// Package cloudflare is a thin typed client for the handful of edge platform
// API calls a deploy needs.
//
// Every operation returns a Result built by parseEnvelope, whatever the HTTP
// outcome. Calls are paced by a token bucket and never retried; deciding what
// a failure means is left to the caller.
package cloudflare
