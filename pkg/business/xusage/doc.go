// Package xusage prices, records, and enforces budgets for billable
// external-service usage.
//
// A Tracker turns raw usage events into immutable priced records, keeps
// per-organization day and month spend windows in process, and answers
// BudgetStatus queries from those windows with a durable-aggregate
// fallback on cache miss. Durable appends run behind a write guard; when
// the store degrades the tracker keeps counting in memory and marks the
// affected results as non-durable.
//
// Pricing is table-driven through PriceTable. Unknown keys are priced at
// a conservative default tier rather than zero.
package xusage
