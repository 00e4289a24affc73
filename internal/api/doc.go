// Package api provides the HTTP client for the realtime token endpoint.
//
// Endpoints:
//   - POST /realtime/token  issues a short-lived bearer token for a subject
//
// Requests carry the service API key as a bearer credential and are retried
// with jittered exponential backoff on 429 and 5xx responses.
package api
