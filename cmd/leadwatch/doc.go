// Package main hosts the leadwatch entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, readiness, metrics, scan control, lead listing, strategy lookup
//     and ad-hoc deal scoring. Scan requests are turned into monitor.StartOptions and handed to the cycle.
//   - Cycle & scheduler: a robfig/cron schedule (monitor.cron) starts a cycle unless one is still running. The cycle
//     loads strategies and active companies, computes the due queue with schedule.DueCompanies and enqueues one task
//     per company into a bounded in-memory queue drained by a fixed worker pool.
//   - Company pipeline: each task runs the client's search scouts (blog, news, LinkedIn, social, portfolio,
//     testimonial) concurrently, drops signals already seen, prefilters by keyword and age, classifies the rest
//     with Gemini and scores triggered signals. A score at or above the client's min_deal_score becomes a lead with
//     optional contacts (Apollo, then Anymailfinder), a drafted email, an evidence snapshot in the blob store and a
//     Pub/Sub notification.
//   - Budgets & resilience: per-client daily budgets for searches, LLM calls and enrichment lookups are counted in
//     Redis (or memory). Every outbound call goes through a token-bucket limiter, a gobreaker circuit breaker and
//     exponential backoff.
//   - Persistence: companies, strategies, leads, runs and per-client run stats live in Postgres (pgx) or memory.
//     Progress events are batched by the progress hub and fanned out to log, Prometheus and store sinks.
//   - Configuration & plumbing: Viper populates config from file and LEADWATCH_* env vars; zap provides structured
//     logging; OpenTelemetry exports traces to Cloud Trace and metrics through Prometheus.
//
// Commands:
//   - serve: API, workers and scheduler until SIGTERM.
//   - scan: one synchronous cycle; prints the finished run.
//   - seed --file: loads strategies and companies from YAML.
//   - due --at: prints the scan queue for an instant without scanning.
//
// Quick checklist:
//   - Configure env vars: LEADWATCH_SERVER_PORT or PORT, LEADWATCH_LLM_API_KEY, LEADWATCH_SEARCH_API_KEY, storage
//     (LEADWATCH_STORAGE_*), database DSN, redis and pubsub when running beyond memory.
//   - Run locally: go run ./cmd/leadwatch --config config.yaml serve (or rely solely on env overrides).
package main
