// Package userrepo manages user identity records for an identity
// provider backend: account creation, credential verification, lockout
// on abuse, password reset through confirmation tokens, and projection
// of raw attribute records into standardized profile claims.
//
// The Manager is the entry point. It reads and writes through the Store
// interface; a bun-backed implementation is provided in BunStore.
// Outbound email, session formats, and the web layer are deliberately
// left to the embedding application.
package userrepo
