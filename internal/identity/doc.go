// Package identity matches voice-chat users to in-game players.
//
// Matching is a fixed fallback chain (see Resolve). "No match" is an
// ordinary result, never an error, and the resolver never mutates the pool,
// the pattern set or the alias table it is given.
package identity
