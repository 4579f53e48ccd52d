// Package storageopt holds storage helpers shared by the usage and
// fallback stores: a circuit-breaker guard around durable writes and
// atomic counters for store statistics.
package storageopt
