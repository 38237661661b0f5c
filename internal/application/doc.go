// Package application wires the settings into running dependencies: the
// database or Redis connection backing sessions, the mailer, the password
// validators, the HTTP pipeline and the server. It keeps the main package
// focused on CLI parsing and orchestration.
package application
