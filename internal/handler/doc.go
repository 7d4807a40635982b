// Package handler implements the toposync HTTP API.
//
// Routes live under /api/v1 and are served by a chi router:
//
//   - providers: list registered providers and finalize supervised runs
//   - sync groups and data sources: CRUD; sensitive parameters are redacted
//     on the way out and a redacted value sent back keeps the stored secret
//   - runs and jobs: launch background runs, list, inspect, kill and export
//     their reports
//   - activity log and configuration variables
//   - probe and seed reload, when configured
//
// Errors are returned as JSON with an {error, details} body. The status code
// follows the domain error the request failed with.
//
// # Server-Sent Events
//
// GET /events streams bus events (run progress, job kills, seed reloads).
package handler
