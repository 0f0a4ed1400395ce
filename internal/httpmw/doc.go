// Package httpmw holds the middleware of the local preview server.
//
// httpserver.NewHandler composes it outermost first: recover, request ID,
// manifest headers, trace headers, metrics, request-scoped logger, then the
// chi router with route annotation and the access log. Query strings and
// other request-supplied values stay out of log fields.
package httpmw
