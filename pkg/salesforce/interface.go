package salesforce

import "context"

// SalesforceClient defines the interface for Salesforce API operations
type SalesforceClient interface {
	// Authenticate logs in and caches the session
	Authenticate(ctx context.Context) (*Session, error)

	// Query runs a SOQL query and returns its first page
	Query(ctx context.Context, soql string) (*QueryResult, error)

	// QueryMore follows a nextRecordsUrl cursor
	QueryMore(ctx context.Context, nextRecordsURL string) (*QueryResult, error)

	// Describe returns the field metadata of an sObject
	Describe(ctx context.Context, object string) (*DescribeResult, error)
}
