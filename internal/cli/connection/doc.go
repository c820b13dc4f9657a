// Package connection talks to a running libos-exitctl serve node over its
// metrics endpoint.
package connection
