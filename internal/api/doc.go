// Package api exposes the pipeline over HTTP. It decodes and validates
// requests, calls the services and maps their errors to status codes and
// stable client-facing messages.
package api
