// Package api hosts the HTTP server, middleware, and REST handlers for
// operator access. Notable routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/runs to submit a digest payload inline or by blob URI.
//   - GET /v1/runs/{run_id} for run status and the final report.
package api
