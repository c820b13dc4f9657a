// Package tests holds integration tests that run several LibOS processes,
// each with its own gossip node, inside one test binary.
package tests
