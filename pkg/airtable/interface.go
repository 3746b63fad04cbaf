package airtable

import "context"

// AirtableClient defines the interface for Airtable record operations on one base
type AirtableClient interface {
	// ListRecords returns every record of table, following pagination
	ListRecords(ctx context.Context, table string) ([]Record, error)

	// CreateRecords creates up to MaxRecordsPerRequest records
	CreateRecords(ctx context.Context, table string, records []Record, typecast bool) ([]Record, error)

	// UpdateRecords patches up to MaxRecordsPerRequest records by id
	UpdateRecords(ctx context.Context, table string, records []Record, typecast bool) ([]Record, error)

	// DeleteRecords deletes up to MaxRecordsPerRequest records by id
	DeleteRecords(ctx context.Context, table string, ids []string) ([]string, error)
}
