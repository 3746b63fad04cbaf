package salesforce

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// Session is an authenticated Salesforce session
type Session struct {
	AccessToken string
	InstanceURL string
	UserID      string
}

// AuthResponse represents the OAuth token response
type AuthResponse struct {
	AccessToken string `json:"access_token"`
	Signature   string `json:"signature"`
	InstanceURL string `json:"instance_url"`
	ID          string `json:"id"`
	TokenType   string `json:"token_type"`
	IssuedAt    string `json:"issued_at"`
}

// PasswordGrantRequest represents the OAuth username/password token request
type PasswordGrantRequest struct {
	GrantType    string `json:"grant_type"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Username     string `json:"username"`
	Password     string `json:"password"`
}

// soapLoginEnvelope covers both the loginResponse and a SOAP fault
type soapLoginEnvelope struct {
	Body struct {
		LoginResponse struct {
			Result struct {
				ServerURL string `xml:"serverUrl"`
				SessionID string `xml:"sessionId"`
				UserID    string `xml:"userId"`
			} `xml:"result"`
		} `xml:"loginResponse"`
		Fault *struct {
			FaultCode   string `xml:"faultcode"`
			FaultString string `xml:"faultstring"`
		} `xml:"Fault"`
	} `xml:"Body"`
}

// Record is a single row returned by a SOQL query. Fields are addressed by
// their API name; relationship fields use dotted paths such as Account.Name.
type Record struct {
	data gjson.Result
}

// NewRecord wraps a raw JSON object as a Record
func NewRecord(raw string) Record {
	return Record{data: gjson.Parse(raw)}
}

// UnmarshalJSON implements json.Unmarshaler for Record
func (r *Record) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("invalid record payload")
	}
	r.data = gjson.ParseBytes(data)
	if !r.data.IsObject() {
		return fmt.Errorf("record payload is not an object: %s", r.data.Type)
	}
	return nil
}

// Get returns the value of field and whether the record carries it at all.
// A field selected in the query but empty in Salesforce exists with a nil value.
func (r Record) Get(field string) (interface{}, bool) {
	result := r.data.Get(field)
	return result.Value(), result.Exists()
}

// String returns the string form of field, false when missing or null
func (r Record) String(field string) (string, bool) {
	result := r.data.Get(field)
	return result.String(), result.Exists() && result.Type != gjson.Null
}

// Type returns the sObject type reported in the record attributes
func (r Record) Type() string {
	return r.data.Get("attributes.type").String()
}

// QueryResult is one page of a SOQL query
type QueryResult struct {
	TotalSize      int      `json:"totalSize"`
	Done           bool     `json:"done"`
	NextRecordsURL string   `json:"nextRecordsUrl"`
	Records        []Record `json:"records"`
}

// Field describes one sObject field
type Field struct {
	Name             string `json:"name"`
	Label            string `json:"label"`
	Type             string `json:"type"`
	RelationshipName string `json:"relationshipName"`
	Nillable         bool   `json:"nillable"`
}

// DescribeResult is the sObject describe payload, trimmed to what we use
type DescribeResult struct {
	Name      string  `json:"name"`
	Label     string  `json:"label"`
	Queryable bool    `json:"queryable"`
	Fields    []Field `json:"fields"`
}

// FieldNames returns the API names of all fields in describe order
func (d *DescribeResult) FieldNames() []string {
	names := make([]string, len(d.Fields))
	for i, f := range d.Fields {
		names[i] = f.Name
	}
	return names
}

// errorResponse is the REST API error shape
type errorResponse []struct {
	Message   string `json:"message"`
	ErrorCode string `json:"errorCode"`
}

func parseAPIError(body string) string {
	var resp errorResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil || len(resp) == 0 {
		return body
	}
	return fmt.Sprintf("%s: %s", resp[0].ErrorCode, resp[0].Message)
}
