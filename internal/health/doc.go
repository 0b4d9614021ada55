// Package health serves the process liveness and readiness endpoints.
//
// # Endpoints
//
//	GET /health        200 "OK" while the process runs
//	GET /health/ready  200 JSON when every registered check passes, 503 otherwise
//
// Checks are registered with AddCheck. The bot registers the store ping and the
// Matrix sync state.
package health
