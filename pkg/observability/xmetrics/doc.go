// Package xmetrics provides a unified observation interface for gateway
// operations with an OpenTelemetry-backed implementation.
//
// Components observe through the Observer interface and never depend on
// OTel types directly; NoopObserver (or a nil Observer together with the
// package-level Start helper) makes observation strictly optional.
package xmetrics
