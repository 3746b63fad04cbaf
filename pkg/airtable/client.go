// Package airtable is a client for the Airtable records API of a single base.
package airtable

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/carlmjohnson/requests"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const (
	listPageSize       = "100"
	HTTPRequestTimeout = 30 * time.Second
)

// Airtable is the client for the records of one Airtable base
type Airtable struct {
	apiURL     string
	apiKey     string
	baseID     string
	httpClient *http.Client
	logger     *zap.Logger
}

var _ AirtableClient = (*Airtable)(nil)

// NewAirtable creates a new Airtable client with default production logger
func NewAirtable(apiURL, apiKey, baseID string) *Airtable {
	logger, _ := zap.NewProduction()
	return NewAirtableWithLogger(apiURL, apiKey, baseID, logger)
}

// NewAirtableWithLogger creates a new Airtable client with a custom logger
func NewAirtableWithLogger(apiURL, apiKey, baseID string, logger *zap.Logger) *Airtable {
	return &Airtable{
		apiURL:     apiURL,
		apiKey:     apiKey,
		baseID:     baseID,
		httpClient: &http.Client{
			Timeout:   HTTPRequestTimeout,
			Transport: rateLimitTransport(http.DefaultTransport, defaultRetryPolicy, logger),
		},
		logger: logger,
	}
}

// tableBuilder returns a request builder pointed at the records of table.
// The path is escaped once when the URL is built, so names go in raw.
func (a *Airtable) tableBuilder(table string) *requests.Builder {
	return requests.
		URL(a.apiURL).
		Client(a.httpClient).
		Pathf("/v0/%s/%s", a.baseID, table).
		Bearer(a.apiKey).
		AddValidator(checkStatus)
}

// ListRecords returns every record of table, following the offset cursor
func (a *Airtable) ListRecords(ctx context.Context, table string) ([]Record, error) {
	a.logger.Info("Listing records", zap.String("table", table))

	var records []Record
	offset := ""
	for {
		var page listResponse
		rb := a.tableBuilder(table).
			Param("pageSize", listPageSize).
			ToJSON(&page)
		if offset != "" {
			rb = rb.Param("offset", offset)
		}
		if err := rb.Fetch(ctx); err != nil {
			a.logger.Error("List records failed", zap.String("table", table), zap.Error(err))
			return nil, fmt.Errorf("list records of %s failed: %w", table, err)
		}

		records = append(records, page.Records...)
		if page.Offset == "" {
			break
		}
		offset = page.Offset
	}

	a.logger.Info("Listed records", zap.String("table", table), zap.Int("count", len(records)))
	return records, nil
}

// CreateRecords creates up to MaxRecordsPerRequest records in table
func (a *Airtable) CreateRecords(ctx context.Context, table string, records []Record, typecast bool) ([]Record, error) {
	if err := checkBatch(len(records)); err != nil {
		return nil, err
	}
	for _, r := range records {
		if r.ID != "" {
			return nil, fmt.Errorf("record %s already has an id", r.ID)
		}
	}

	var resp writeResponse
	err := a.tableBuilder(table).
		BodyJSON(writeRequest{Records: records, Typecast: typecast}).
		ToJSON(&resp).
		Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("create records in %s failed: %w", table, err)
	}

	a.logger.Debug("Created records", zap.String("table", table), zap.Int("count", len(resp.Records)))
	return resp.Records, nil
}

// UpdateRecords patches up to MaxRecordsPerRequest records in table
func (a *Airtable) UpdateRecords(ctx context.Context, table string, records []Record, typecast bool) ([]Record, error) {
	if err := checkBatch(len(records)); err != nil {
		return nil, err
	}
	for i, r := range records {
		if r.ID == "" {
			return nil, fmt.Errorf("record %d has no id", i)
		}
	}

	// Timestamps are read-only and rejected on write
	body := make([]Record, len(records))
	for i, r := range records {
		body[i] = Record{ID: r.ID, Fields: r.Fields}
	}

	var resp writeResponse
	err := a.tableBuilder(table).
		Patch().
		BodyJSON(writeRequest{Records: body, Typecast: typecast}).
		ToJSON(&resp).
		Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("update records in %s failed: %w", table, err)
	}

	a.logger.Debug("Updated records", zap.String("table", table), zap.Int("count", len(resp.Records)))
	return resp.Records, nil
}

// DeleteRecords deletes up to MaxRecordsPerRequest records from table
func (a *Airtable) DeleteRecords(ctx context.Context, table string, ids []string) ([]string, error) {
	if err := checkBatch(len(ids)); err != nil {
		return nil, err
	}

	var resp deleteResponse
	err := a.tableBuilder(table).
		Delete().
		Param("records[]", ids...).
		ToJSON(&resp).
		Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("delete records in %s failed: %w", table, err)
	}

	deleted := make([]string, 0, len(resp.Records))
	for _, r := range resp.Records {
		if r.Deleted {
			deleted = append(deleted, r.ID)
		}
	}

	a.logger.Debug("Deleted records", zap.String("table", table), zap.Int("count", len(deleted)))
	return deleted, nil
}

func checkBatch(n int) error {
	if n == 0 {
		return fmt.Errorf("no records given")
	}
	if n > MaxRecordsPerRequest {
		return fmt.Errorf("at most %d records per request, got %d", MaxRecordsPerRequest, n)
	}
	return nil
}

// checkStatus turns non-2xx responses into an APIError. Airtable reports
// errors either as {"error":"NOT_FOUND"} or {"error":{"type":..,"message":..}}.
func checkStatus(res *http.Response) error {
	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(res.Body, 1<<16))
	apiErr := &APIError{StatusCode: res.StatusCode}

	e := gjson.GetBytes(body, "error")
	switch {
	case e.Type == gjson.String:
		apiErr.Type = e.String()
	case e.IsObject():
		apiErr.Type = e.Get("type").String()
		apiErr.Message = e.Get("message").String()
	default:
		apiErr.Type = http.StatusText(res.StatusCode)
		apiErr.Message = string(body)
	}
	return apiErr
}
