// Package program defines the bias programs the sequencer runs. It contains:
//
//   - Monitor: continuous fixed-bias sampling into a circular buffer
//   - Pulse: a single pulse with simultaneous peak voltage/current capture
//   - Sweep: a triangular voltage sweep (rise, optional hold, fall)
//   - Program: the versioned envelope holding exactly one of the above
//
// Programs are plain records. Range checks and clamping live in package
// validate; this package only rejects programs that are structurally
// incomplete (missing variant, unknown version, unknown fields in a file).
package program
