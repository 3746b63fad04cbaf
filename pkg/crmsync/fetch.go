package crmsync

import (
	"context"
	"fmt"

	"github.com/natserract/sfsync/pkg/salesforce"
	"go.uber.org/zap"
)

// FetchAll runs soql and follows nextRecordsUrl cursors until the result is
// done. Records keep page order. Any failing page fails the whole fetch.
func FetchAll(ctx context.Context, client salesforce.SalesforceClient, soql string, logger *zap.Logger) ([]salesforce.Record, error) {
	page, err := client.Query(ctx, soql)
	if err != nil {
		return nil, err
	}

	records := make([]salesforce.Record, 0, len(page.Records))
	records = append(records, page.Records...)
	pages := 1

	for !page.Done {
		if page.NextRecordsURL == "" {
			return nil, fmt.Errorf("page %d: %w", pages, ErrMissingCursor)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		logger.Info("Fetching next page of records",
			zap.Int("page", pages+1),
			zap.Int("fetched", len(records)))

		page, err = client.QueryMore(ctx, page.NextRecordsURL)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", pages+1, err)
		}
		records = append(records, page.Records...)
		pages++
	}

	logger.Debug("Fetched all pages", zap.Int("pages", pages), zap.Int("records", len(records)))
	return records, nil
}
