// Package middleware contains HTTP middleware specific to this API. Generic
// middleware comes from github.com/go-chi/chi/v5/middleware.
package middleware
