// Package uniuri generates cryptographically secure random strings.
// It backs the opaque secrets of the user store: refresh tokens, security
// stamps and generated username suffixes. Sampling rejects values outside
// the charset range, so the output carries no modulo bias.
package uniuri
