// Package core defines the data model shared across the Argus correlation
// engine: events, declarative detection rules with their condition and
// threshold vocabulary, alerts and the alert lifecycle state machine, and
// the compact duration-string parser used by threshold and throttle windows.
//
// The package holds no mutable engine state; everything stateful lives in
// the engine package so multiple independent engine instances can coexist
// in tests.
package core
