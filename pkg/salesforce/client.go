// Package salesforce provides a small client for the Salesforce REST API:
// username/password login, SOQL queries with cursor pagination, and sObject
// describe calls.
package salesforce

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/natserract/sfsync/pkg/config"
	httpclient "github.com/natserract/sfsync/pkg/http"
	"go.uber.org/zap"
)

// Salesforce is the main client for interacting with the Salesforce REST API
type Salesforce struct {
	config       *config.Config
	httpClient   *httpclient.Client
	sessionCache *sessionCache
	logger       *zap.Logger
}

// sessionCache holds the login session with thread-safe access
type sessionCache struct {
	mu      sync.RWMutex
	session *Session
}

var _ SalesforceClient = (*Salesforce)(nil)

// NewSalesforce creates a new Salesforce client with default production logger
func NewSalesforce(cfg *config.Config) *Salesforce {
	logger, _ := zap.NewProduction()
	return NewSalesforceWithLogger(cfg, logger)
}

// NewSalesforceWithLogger creates a new Salesforce client with a custom logger
func NewSalesforceWithLogger(cfg *config.Config, logger *zap.Logger) *Salesforce {
	return &Salesforce{
		config:       cfg,
		httpClient:   httpclient.NewClientWithLogger(logger),
		sessionCache: &sessionCache{},
		logger:       logger,
	}
}

// Query runs a SOQL query and returns the first page of results
func (s *Salesforce) Query(ctx context.Context, soql string) (*QueryResult, error) {
	s.logger.Debug("Running query", zap.String("soql", soql))

	var result QueryResult
	err := s.get(ctx, s.dataPath("/query"), map[string]string{"q": soql}, &result)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	s.logger.Info("Query returned",
		zap.Int("total_size", result.TotalSize),
		zap.Int("page_size", len(result.Records)),
		zap.Bool("done", result.Done))

	return &result, nil
}

// QueryMore fetches the page behind a nextRecordsUrl cursor
func (s *Salesforce) QueryMore(ctx context.Context, nextRecordsURL string) (*QueryResult, error) {
	if nextRecordsURL == "" {
		return nil, fmt.Errorf("nextRecordsURL is required")
	}
	s.logger.Info("Fetching next page of records", zap.String("cursor", nextRecordsURL))

	var result QueryResult
	if err := s.get(ctx, nextRecordsURL, nil, &result); err != nil {
		return nil, fmt.Errorf("query more failed: %w", err)
	}
	return &result, nil
}

// Describe returns the field metadata of an sObject
func (s *Salesforce) Describe(ctx context.Context, object string) (*DescribeResult, error) {
	if object == "" {
		return nil, fmt.Errorf("object is required")
	}
	s.logger.Info("Describing object", zap.String("object", object))

	var result DescribeResult
	path := s.dataPath(fmt.Sprintf("/sobjects/%s/describe", url.PathEscape(object)))
	if err := s.get(ctx, path, nil, &result); err != nil {
		return nil, fmt.Errorf("describe %s failed: %w", object, err)
	}

	s.logger.Debug("Described object",
		zap.String("object", result.Name),
		zap.Int("field_count", len(result.Fields)))

	return &result, nil
}

func (s *Salesforce) dataPath(suffix string) string {
	return fmt.Sprintf("/services/data/v%s%s", s.config.SalesforceAPIVersion, suffix)
}

// get performs an authenticated GET against the instance and decodes the JSON
// response into out. An expired session is renewed once.
func (s *Salesforce) get(ctx context.Context, path string, params map[string]string, out interface{}) error {
	resp, err := s.doGet(ctx, path, params)

	var statusErr *httpclient.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusUnauthorized {
		s.logger.Warn("Session rejected, logging in again", zap.String("path", path))
		s.invalidateSession()
		resp, err = s.doGet(ctx, path, params)
	}
	if err != nil {
		if errors.As(err, &statusErr) {
			return fmt.Errorf("status %d: %s", statusErr.StatusCode, parseAPIError(statusErr.Body))
		}
		return err
	}

	if err := json.Unmarshal(resp.Body, out); err != nil {
		s.logger.Error("Failed to parse response", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func (s *Salesforce) doGet(ctx context.Context, path string, params map[string]string) (*httpclient.Response, error) {
	session, err := s.getSession(ctx)
	if err != nil {
		return nil, err
	}

	endpoint, err := httpclient.BuildURL(session.InstanceURL, path, params)
	if err != nil {
		return nil, fmt.Errorf("failed to build URL: %w", err)
	}

	headers := map[string]string{
		"Authorization": "Bearer " + session.AccessToken,
	}
	return s.httpClient.Get(ctx, endpoint, headers)
}
