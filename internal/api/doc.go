// Package api hosts the HTTP server, middleware, and REST handlers for the
// report lifecycle. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - /v1/reports for submission, history, fetch, long-poll watch and download.
//   - GET /v1/subscription for the caller's remaining quota.
//   - POST /internal/v1/reports/{id}/advance for generator callbacks, guarded
//     by X-API-Key.
package api
