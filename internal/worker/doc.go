// Package worker renders a manifest into a self-contained edge program and
// reads such programs back.
//
// The program is a service-worker style script with a single fetch listener.
// Files are embedded as one JSON object literal of path -> {type, body},
// where body is base64. Routing follows one policy, implemented twice: in the
// generated JavaScript and in Router, which the preview server uses and which
// tests treat as the reference for what the edge will answer.
//
//	"/"                      -> index.html
//	exact key                -> 200, entry type, cached, CORS *
//	miss, no "." in key      -> 200, index.html as text/html, cached
//	otherwise                -> 404 "Not found: <path>"
package worker
