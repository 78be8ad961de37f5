// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/scans and POST /v1/companies/{id}/scan to start scan runs.
//   - GET /v1/scans/{id} and /v1/scans/{id}/clients for run progress via the
//     ProgressRepository interface.
//   - GET /v1/leads, /v1/clients/{id}/strategy and /v1/clients/{id}/due.
//   - POST /v1/score for ad-hoc deal-score breakdowns.
package api
