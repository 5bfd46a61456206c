// Package main hosts the auditsnap service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, metrics, report submission, history, fetch, long-poll
//     watch, download and subscription endpoints. Bearer JWTs become an explicit audit.Session per request.
//   - Lifecycle: internal/lifecycle.Controller owns the pending -> processing -> completed|failed state
//     machine. Every write is a compare-and-set on the current status; the controller runs no goroutines.
//   - Dispatch: with dispatch.driver=local, reports flow through a bounded in-memory queue to a fixed worker
//     pool that runs the generator and reports back through Advance. With dispatch.driver=pubsub, reports are
//     published to a topic and an external fleet calls POST /internal/v1/reports/{id}/advance.
//   - Generators: the heuristic generator fetches the page with Colly (robots-aware, per-domain rate limited,
//     optional chromedp render for navigation timings); the llm generator asks a chat-completions API.
//   - Persistence: reports and quota live in memory or Postgres (pgx pool, golang-migrate schema); quota can
//     also live in Redis. Completed reports can be archived as JSON to memory, local disk or GCS.
//   - Observability: zap logs carry report_id, user_id, url and status at transitions; Prometheus counters and
//     histograms track API and lifecycle activity; the lifecycle hub batches events to log, Prometheus and
//     archive sinks. Trace context rides on Pub/Sub attributes.
//
// Quick checklist:
//   - Required: AUDITSNAP_AUTH_JWT_SECRET. Set AUDITSNAP_AUTH_CALLBACK_API_KEY to enable the callback route.
//   - Run locally: go run ./cmd/auditsnap -config config.yaml (or rely solely on env overrides).
//   - Get a dev token: go run ./cmd/auditsnap -issue-token user-1
//   - Cloud Run: the server listens on PORT when set and drains workers on SIGTERM.
package main
