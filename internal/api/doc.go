// Package api hosts the dashboard HTTP server. Notable routes:
//   - GET / serves the map page.
//   - GET /api/v1/filters lists the filter choices.
//   - GET /api/v1/view returns markers and statistics for a filter.
//   - GET /healthz and /readyz for probes, /metrics for Prometheus scraping.
package api
