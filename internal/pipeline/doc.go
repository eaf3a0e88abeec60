// Package pipeline orchestrates queue items through the optimize, derive,
// and publish stages: claiming the next workable item, transitioning its
// status, executing the stage handler, and classifying failures into
// retries or terminal errors.
package pipeline
