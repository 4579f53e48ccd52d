// Package util provides general-purpose utility subpackages.
//
// Subpackages:
//   - xid: unique ID generation backed by sonyflake
package util
