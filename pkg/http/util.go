package http

import (
	"fmt"
	"net/url"
	"strings"
)

// BuildURL joins path onto baseURL and encodes queryParams. A path that already
// carries a query string (such as a Salesforce nextRecordsUrl) keeps it.
func BuildURL(baseURL, path string, queryParams map[string]string) (string, error) {
	parsedURL, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("error parsing base URL: %w", err)
	}

	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("error parsing path: %w", err)
	}
	parsedURL.Path = parsedURL.Path + ref.Path

	q := ref.Query()
	for key, value := range queryParams {
		q.Set(key, value)
	}
	parsedURL.RawQuery = q.Encode()

	return parsedURL.String(), nil
}
