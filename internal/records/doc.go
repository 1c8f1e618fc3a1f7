// Package records defines the tabular service-record model shared by the
// scraper, the reconciliation pipeline and the dashboard.
package records
