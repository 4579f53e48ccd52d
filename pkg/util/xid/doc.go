// Package xid generates Sonyflake-based unique IDs for durable rows.
//
// IDs are 63-bit integers ordered by generation time, which keeps index
// locality in MongoDB and makes records naturally sortable by creation.
package xid
