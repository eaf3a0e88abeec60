// Package tools holds the shared plumbing for external optimizer and
// variant-creator binaries: argument templating, command execution with
// timeouts, and the error taxonomy used to classify failures for retry
// decisions. Subpackages implement the actual per-concern clients.
package tools
