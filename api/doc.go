// Package api defines the request and response types of the Styleflow HTTP API.
//
// # API Overview
//
// Styleflow exposes a small RESTful API:
//   - POST /api/v1/transform turns a portrait into one of the catalog styles
//   - POST /api/v1/tweak edits an image with a free-text instruction
//   - POST /api/v1/remove-bg cuts out the subject through Remove.bg
//   - GET /api/v1/styles and /api/v1/styles/{id} browse the style catalog
//   - GET /api/v1/providers reports which image backends are configured
//   - /health, /healthz, /ready and /version for health checks
//
// Metrics are served on a separate port at /metrics.
//
// # Authentication
//
// When API keys are configured every /api/v1 endpoint requires the
// X-API-Key header:
//
//	X-API-Key: your-api-key
//
// A JWT bearer token may be used instead when jwt.secret or jwt.public_key
// is set; its user_id claim scopes the per-user concurrency limit.
//
// # Base URL
//
// The default base URL for the API is:
//
//	http://localhost:8080
//
// # Generating Documentation
//
// Handlers carry swag annotations:
//
//	swag init -g cmd/styleflow/main.go -o api --parseDependency --parseInternal
package api
