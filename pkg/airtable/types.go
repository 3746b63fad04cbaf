package airtable

import "fmt"

// MaxRecordsPerRequest is the Airtable limit for create, update and delete calls
const MaxRecordsPerRequest = 10

// Record is an Airtable row. ID is empty for records that are yet to be created.
type Record struct {
	ID          string                 `json:"id,omitempty"`
	CreatedTime string                 `json:"createdTime,omitempty"`
	Fields      map[string]interface{} `json:"fields"`
}

// listResponse is one page of a list records call
type listResponse struct {
	Records []Record `json:"records"`
	Offset  string   `json:"offset"`
}

// writeRequest is the body of create and update calls
type writeRequest struct {
	Records  []Record `json:"records"`
	Typecast bool     `json:"typecast,omitempty"`
}

type writeResponse struct {
	Records []Record `json:"records"`
}

type deleteResponse struct {
	Records []struct {
		ID      string `json:"id"`
		Deleted bool   `json:"deleted"`
	} `json:"records"`
}

// APIError is an error payload returned by Airtable
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("airtable error %d: %s", e.StatusCode, e.Type)
	}
	return fmt.Sprintf("airtable error %d: %s: %s", e.StatusCode, e.Type, e.Message)
}
