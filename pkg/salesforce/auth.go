package salesforce

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"net/url"

	httpclient "github.com/natserract/sfsync/pkg/http"
	"go.uber.org/zap"
)

const soapLoginTemplate = `<?xml version="1.0" encoding="utf-8" ?>
<env:Envelope xmlns:xsd="http://www.w3.org/2001/XMLSchema" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xmlns:env="http://schemas.xmlsoap.org/soap/envelope/">
  <env:Body>
    <n1:login xmlns:n1="urn:partner.soap.sforce.com">
      <n1:username>%s</n1:username>
      <n1:password>%s</n1:password>
    </n1:login>
  </env:Body>
</env:Envelope>`

// ErrAuthentication is returned when Salesforce rejects the login
var ErrAuthentication = errors.New("salesforce authentication failed")

// getSession returns the cached session, logging in when there is none yet
func (s *Salesforce) getSession(ctx context.Context) (*Session, error) {
	s.sessionCache.mu.RLock()
	session := s.sessionCache.session
	s.sessionCache.mu.RUnlock()
	if session != nil {
		s.logger.Debug("Using cached session", zap.String("instance_url", session.InstanceURL))
		return session, nil
	}

	s.logger.Info("Session not available, authenticating")
	return s.Authenticate(ctx)
}

// invalidateSession drops the cached session so the next call logs in again
func (s *Salesforce) invalidateSession() {
	s.sessionCache.mu.Lock()
	s.sessionCache.session = nil
	s.sessionCache.mu.Unlock()
}

// Authenticate logs in with the configured credentials and caches the session.
// The OAuth password grant is used when a connected app client id is
// configured, otherwise the partner SOAP login.
func (s *Salesforce) Authenticate(ctx context.Context) (*Session, error) {
	var (
		session *Session
		err     error
	)
	if s.config.SalesforceClientID != "" {
		session, err = s.passwordGrant(ctx)
	} else {
		session, err = s.soapLogin(ctx)
	}
	if err != nil {
		s.logger.Error("Failed to authenticate", zap.Error(err))
		return nil, err
	}

	s.sessionCache.mu.Lock()
	s.sessionCache.session = session
	s.sessionCache.mu.Unlock()

	s.logger.Info("Successfully logged in",
		zap.String("user_id", session.UserID),
		zap.String("instance_url", session.InstanceURL))

	return session, nil
}

func (s *Salesforce) soapLogin(ctx context.Context) (*Session, error) {
	endpoint := fmt.Sprintf("%s/services/Soap/u/%s", s.config.SalesforceLoginURL, s.config.SalesforceAPIVersion)
	s.logger.Info("Authenticating with Salesforce", zap.String("url", endpoint), zap.String("method", "soap"))

	body := fmt.Sprintf(soapLoginTemplate,
		escapeXML(s.config.SalesforceEmail),
		escapeXML(s.config.SalesforceLoginPassword()))

	resp, err := s.httpClient.Do(httpclient.RequestOptions{
		Method: "POST",
		URL:    endpoint,
		Headers: map[string]string{
			"Content-Type": "text/xml; charset=UTF-8",
			"SOAPAction":   "login",
		},
		Body:       []byte(body),
		Context:    ctx,
		MaxRetries: 1,
	})
	if err != nil {
		var statusErr *httpclient.StatusError
		if errors.As(err, &statusErr) {
			return nil, fmt.Errorf("%w: %s", ErrAuthentication, soapFault(statusErr.Body))
		}
		return nil, fmt.Errorf("authentication request failed: %w", err)
	}

	var envelope soapLoginEnvelope
	if err := xml.Unmarshal(resp.Body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse login response: %w", err)
	}
	if envelope.Body.Fault != nil {
		return nil, fmt.Errorf("%w: %s: %s", ErrAuthentication, envelope.Body.Fault.FaultCode, envelope.Body.Fault.FaultString)
	}

	result := envelope.Body.LoginResponse.Result
	if result.SessionID == "" || result.ServerURL == "" {
		return nil, fmt.Errorf("%w: login response carries no session", ErrAuthentication)
	}

	serverURL, err := url.Parse(result.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse server url: %w", err)
	}

	return &Session{
		AccessToken: result.SessionID,
		InstanceURL: serverURL.Scheme + "://" + serverURL.Host,
		UserID:      result.UserID,
	}, nil
}

func (s *Salesforce) passwordGrant(ctx context.Context) (*Session, error) {
	endpoint := fmt.Sprintf("%s/services/oauth2/token", s.config.SalesforceLoginURL)
	s.logger.Info("Authenticating with Salesforce", zap.String("url", endpoint), zap.String("method", "oauth"))

	authReq := PasswordGrantRequest{
		GrantType:    "password",
		ClientID:     s.config.SalesforceClientID,
		ClientSecret: s.config.SalesforceClientSecret,
		Username:     s.config.SalesforceEmail,
		Password:     s.config.SalesforceLoginPassword(),
	}

	resp, err := s.httpClient.Do(httpclient.RequestOptions{
		Method: "POST",
		URL:    endpoint,
		Headers: map[string]string{
			"Content-Type": "application/x-www-form-urlencoded",
		},
		Body:       authReq,
		Context:    ctx,
		MaxRetries: 1,
	})
	if err != nil {
		var statusErr *httpclient.StatusError
		if errors.As(err, &statusErr) {
			return nil, fmt.Errorf("%w: %s", ErrAuthentication, statusErr.Body)
		}
		return nil, fmt.Errorf("authentication request failed: %w", err)
	}

	var authResp AuthResponse
	if err := json.Unmarshal(resp.Body, &authResp); err != nil {
		return nil, fmt.Errorf("failed to parse authentication response: %w", err)
	}
	if authResp.AccessToken == "" {
		return nil, fmt.Errorf("%w: token response carries no access token", ErrAuthentication)
	}

	return &Session{
		AccessToken: authResp.AccessToken,
		InstanceURL: authResp.InstanceURL,
		UserID:      authResp.ID,
	}, nil
}

func soapFault(body string) string {
	var envelope soapLoginEnvelope
	if err := xml.Unmarshal([]byte(body), &envelope); err != nil || envelope.Body.Fault == nil {
		return body
	}
	return envelope.Body.Fault.FaultCode + ": " + envelope.Body.Fault.FaultString
}

func escapeXML(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}
