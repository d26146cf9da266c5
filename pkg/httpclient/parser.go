package httpclient

import (
	"encoding/json"
	"fmt"
)

// ParseJSON decodes a response body into generic JSON structures.
func ParseJSON(body []byte) (any, error) {
	var result any
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	return result, nil
}

// IsSuccessStatus returns true if the status code indicates success
func IsSuccessStatus(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}

// IsRetryableStatus returns true if the status code indicates a retryable error
func IsRetryableStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// IsAuthStatus returns true if the status code indicates an authentication
// or authorization failure.
func IsAuthStatus(statusCode int) bool {
	return statusCode == 401 || statusCode == 403
}
