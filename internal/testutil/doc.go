// Package testutil provides deterministic fakes for engine tests:
// in-memory repositories, sequential id generators and a manual clock.
package testutil
