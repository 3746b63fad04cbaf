package airtable

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestAirtable(t *testing.T, handler http.HandlerFunc) *Airtable {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewAirtableWithLogger(srv.URL, "pat123", "app06ngW3xR9R2X59", zap.NewNop())
	client.httpClient.Transport = rateLimitTransport(http.DefaultTransport, testRetryPolicy, zap.NewNop())
	return client
}

var testRetryPolicy = retryPolicy{
	MaxTries:        3,
	InitialInterval: time.Millisecond,
	MaxInterval:     5 * time.Millisecond,
	MaxElapsed:      time.Second,
}

func Test_ListRecords_FollowsOffset(t *testing.T) {
	calls := 0
	client := newTestAirtable(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "Bearer pat123", r.Header.Get("Authorization"))
		assert.Equal(t, "/v0/app06ngW3xR9R2X59/Sales Accounts", r.URL.Path)
		assert.Equal(t, "100", r.URL.Query().Get("pageSize"))

		switch r.URL.Query().Get("offset") {
		case "":
			_, _ = w.Write([]byte(`{"records":[{"id":"rec1","fields":{"SFDC ID":"a1"}}],"offset":"itr1/rec1"}`))
		case "itr1/rec1":
			_, _ = w.Write([]byte(`{"records":[{"id":"rec2","fields":{"SFDC ID":"a2"}}]}`))
		default:
			t.Errorf("unexpected offset %q", r.URL.Query().Get("offset"))
		}
	})

	records, err := client.ListRecords(context.Background(), "Sales Accounts")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "rec1", records[0].ID)
	assert.Equal(t, "a2", records[1].Fields["SFDC ID"])
	assert.Equal(t, 2, calls)
}

func Test_CreateRecords_SendsTypecast(t *testing.T) {
	client := newTestAirtable(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)

		var req writeRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Typecast)
		if !assert.Len(t, req.Records, 1) {
			return
		}
		assert.Empty(t, req.Records[0].ID)

		_, _ = w.Write([]byte(`{"records":[{"id":"recNew","createdTime":"2024-01-01T00:00:00.000Z","fields":{"Name":"Acme"}}]}`))
	})

	created, err := client.CreateRecords(context.Background(), "Accounts",
		[]Record{{Fields: map[string]interface{}{"Name": "Acme"}}}, true)
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, "recNew", created[0].ID)
}

func Test_UpdateRecords_RequiresIDs(t *testing.T) {
	client := newTestAirtable(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	_, err := client.UpdateRecords(context.Background(), "Accounts",
		[]Record{{Fields: map[string]interface{}{"Name": "Acme"}}}, true)
	assert.Error(t, err)
}

func Test_UpdateRecords_Patch(t *testing.T) {
	client := newTestAirtable(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		var req writeRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "rec123", req.Records[0].ID)
		assert.Empty(t, req.Records[0].CreatedTime)
		_, _ = w.Write([]byte(`{"records":[{"id":"rec123","fields":{"Name":"Acme"}}]}`))
	})

	updated, err := client.UpdateRecords(context.Background(), "Accounts",
		[]Record{{ID: "rec123", CreatedTime: "2024-01-01T00:00:00.000Z", Fields: map[string]interface{}{"Name": "Acme"}}}, true)
	require.NoError(t, err)
	assert.Equal(t, "rec123", updated[0].ID)
}

func Test_DeleteRecords(t *testing.T) {
	client := newTestAirtable(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, []string{"rec1", "rec2"}, r.URL.Query()["records[]"])
		_, _ = w.Write([]byte(`{"records":[{"id":"rec1","deleted":true},{"id":"rec2","deleted":true}]}`))
	})

	deleted, err := client.DeleteRecords(context.Background(), "Accounts", []string{"rec1", "rec2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"rec1", "rec2"}, deleted)
}

func Test_BatchLimit(t *testing.T) {
	client := newTestAirtable(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	ids := make([]string, MaxRecordsPerRequest+1)
	for i := range ids {
		ids[i] = "rec"
	}
	_, err := client.DeleteRecords(context.Background(), "Accounts", ids)
	assert.EqualError(t, err, "at most 10 records per request, got 11")
}

func Test_ApiError(t *testing.T) {
	client := newTestAirtable(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":{"type":"INVALID_VALUE_FOR_COLUMN","message":"Field \"Amount\" cannot accept the provided value"}}`))
	})

	_, err := client.CreateRecords(context.Background(), "Opportunities",
		[]Record{{Fields: map[string]interface{}{"Amount": "lots"}}}, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INVALID_VALUE_FOR_COLUMN")
	assert.Contains(t, err.Error(), "cannot accept the provided value")
}

func Test_ApiError_StringForm(t *testing.T) {
	client := newTestAirtable(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"NOT_FOUND"}`))
	})

	_, err := client.ListRecords(context.Background(), "Missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "airtable error 404: NOT_FOUND")
}

func Test_CreateRecords_EscapesTableNameOnce(t *testing.T) {
	client := newTestAirtable(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v0/app06ngW3xR9R2X59/Sales%20Accounts", r.URL.EscapedPath())
		_, _ = w.Write([]byte(`{"records":[{"id":"recNew","fields":{"Name":"Acme"}}]}`))
	})

	_, err := client.CreateRecords(context.Background(), "Sales Accounts",
		[]Record{{Fields: map[string]interface{}{"Name": "Acme"}}}, true)
	require.NoError(t, err)
}

func Test_CreateRecords_RetriesRateLimit(t *testing.T) {
	calls := 0
	client := newTestAirtable(t, func(w http.ResponseWriter, r *http.Request) {
		calls++

		var req writeRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Len(t, req.Records, 1)

		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"errors":[{"error":"RATE_LIMIT_REACHED"}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"records":[{"id":"recNew","fields":{"Name":"Acme"}}]}`))
	})

	created, err := client.CreateRecords(context.Background(), "Accounts",
		[]Record{{Fields: map[string]interface{}{"Name": "Acme"}}}, true)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	require.Len(t, created, 1)
	assert.Equal(t, "recNew", created[0].ID)
}

func Test_RateLimit_GivesUp(t *testing.T) {
	calls := 0
	client := newTestAirtable(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.ListRecords(context.Background(), "Accounts")
	require.Error(t, err)
	assert.Equal(t, int(testRetryPolicy.MaxTries), calls)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
}

func Test_ServerError_NotRetried(t *testing.T) {
	calls := 0
	client := newTestAirtable(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := client.CreateRecords(context.Background(), "Accounts",
		[]Record{{Fields: map[string]interface{}{"Name": "Acme"}}}, true)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
