// Package main hosts the imagemill CLI entrypoint and command graph.
//
// The Cobra-based command tree covers one-shot processing of rendered
// images, the long-running watch worker, queue maintenance, savings
// reporting, dependency checks, and configuration scaffolding. It
// centralizes configuration resolution and queue access so subcommands can
// focus on user experience instead of wiring.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
