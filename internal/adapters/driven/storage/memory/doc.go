// Package memory provides in-memory implementations of the driven store ports.
// They back unit tests and the single-process `sync` command when no
// database directory is configured. Nothing survives a restart.
package memory
