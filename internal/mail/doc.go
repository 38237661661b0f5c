// Package mail delivers outbound email through the backend selected by the
// settings: console output in debug mode, an SMTP relay otherwise, or an
// in-memory outbox for tests.
package mail
