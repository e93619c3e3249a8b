package classifier

import (
	"deploy-wizard-cli/internal/domain"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const (
	notFoundMessage     = "repository not found; check URL and token if private"
	unauthorizedMessage = "invalid token or authentication failed"
	unreachableMessage  = "hosting provider unreachable"
)

// providerError covers the error bodies of both GitHub and GitLab,
// which carry a top-level "message" (GitLab sometimes uses "error").
type providerError struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// Classify maps a failed hosting API response to a resolution error.
// Provider response schemas stay behind this function.
func Classify(status int, body string) *domain.ResolutionError {
	switch status {
	case http.StatusNotFound:
		return &domain.ResolutionError{
			Kind:    domain.KindNotFound,
			Message: notFoundMessage,
			Status:  status,
		}
	case http.StatusUnauthorized:
		return &domain.ResolutionError{
			Kind:    domain.KindUnauthorized,
			Message: unauthorizedMessage,
			Status:  status,
		}
	}

	message := fmt.Sprintf("hosting API error: %s", StatusText(status))
	if detail := ExtractMessage(body); detail != "" {
		message = fmt.Sprintf("%s (%s)", message, detail)
	}
	return &domain.ResolutionError{
		Kind:    domain.KindUpstreamUnavailable,
		Message: message,
		Status:  status,
	}
}

// ClassifyNetwork wraps a failure where no HTTP response was received
// (connection refused, DNS, timeout).
func ClassifyNetwork(err error) *domain.ResolutionError {
	return &domain.ResolutionError{
		Kind:    domain.KindUpstreamUnavailable,
		Message: unreachableMessage,
		Err:     err,
	}
}

// StatusText renders "404 Not Found" style text, tolerating unknown codes.
func StatusText(status int) string {
	text := http.StatusText(status)
	if text == "" {
		return fmt.Sprintf("%d", status)
	}
	return fmt.Sprintf("%d %s", status, text)
}

// ExtractMessage pulls a human readable message out of a provider error body.
func ExtractMessage(body string) string {
	body = strings.TrimSpace(body)
	if body == "" {
		return ""
	}

	var parsed providerError
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return ""
	}
	if parsed.Message != "" {
		return parsed.Message
	}
	return parsed.Error
}
