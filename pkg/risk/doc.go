// Package risk is the CardioSense scoring engine.
//
// A RuleSet is a validated, immutable table of rules. Each rule reads one or
// more fields of a VitalSample, and when its predicate holds it adds a fixed
// delta to the score and may force an emergency. Assess evaluates every rule,
// sums the deltas, and classifies the total into a Level using the rule set's
// thresholds. An emergency always yields LevelCritical.
//
// Assess is a pure function: no I/O, no clock, no shared mutable state. A
// RuleSet may be shared by any number of goroutines.
//
// Two rule sets ship embedded in the package: "basic" covers the four bedside
// vitals, "extended" adds the ECG channels and is the Default.
package risk
