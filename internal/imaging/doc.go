// Package imaging provides format detection, in-process decoding, and the
// optional resize/re-encode filter applied before external optimizers run.
package imaging
