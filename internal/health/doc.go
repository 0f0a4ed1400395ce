// Package health provides the probes and handlers behind the preview
// server's /-/healthy and /-/ready endpoints.
//
// [ShutdownGate] fails readiness as soon as shutdown begins, while in-flight
// requests are still being drained.
package health
