// Package logging wires slog with imagemill's console and JSON handlers.
//
// The console handler renders `TS LEVEL component: message k=v ...` lines
// for interactive use; the JSON handler is intended for log files and
// machine consumption. Attr helpers keep call sites terse and standardize
// the event_type / error_hint / impact fields used on warnings and errors.
package logging
