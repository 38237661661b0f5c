// Package session implements server-side browser sessions: the session
// value carried through a request, the stores that persist it (PostgreSQL,
// Redis, memory) and the middleware that applies the cookie policy from the
// settings.
package session
