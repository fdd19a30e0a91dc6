// Package api implements the HTTP REST API for StarterKit.
//
// Endpoints (all under /api/v1):
//
//	GET    /health           database probe and pool statistics (503 when unreachable)
//	GET    /metrics          runtime, integration and pool metrics
//	GET    /settings         effective value of every setting
//	PUT    /settings         store several values in one transaction
//	GET    /settings/stored  only the settings that have been stored
//	GET    /settings/{key}   effective value of one setting
//	PUT    /settings/{key}   store one value: {"value": "dark"}
//	DELETE /settings/{key}   reset to the default
//	GET    /audit            paginated audit log
//
// Errors are returned as {"status", "code", "message"}. Every response
// carries an X-Request-ID header.
//
// The server follows the same lifecycle pattern as the infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
