// Package tlsroots loads the TLS material of the metrics endpoint.
//
// A KeyPair holds the serving certificate of serve's /metrics and reloads it
// when the certificate or key file changes. A Pool holds the roots that
// stats trusts when it scrapes a node over HTTPS.
package tlsroots
