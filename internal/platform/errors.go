package platform

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/postmux/postmux/internal/transfer"
)

// PublishError is a classified adapter failure. Message is the most
// specific human-readable text extracted from the provider response;
// only the message survives into the target row.
type PublishError struct {
	Platform string
	Code     string
	Message  string
}

func (e *PublishError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Platform, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Platform, e.Message)
}

// An extractor inspects a provider error body and returns a message, or
// "" when the body does not match its shape.
type extractor func(body []byte) string

// Provider error bodies are heterogeneous; the strategies are tried in
// order from most to least specific, with a generic fallback at the end.
var extractors = []extractor{
	extractGraphError,
	extractTiktokError,
	extractOAuthError,
	extractFlatError,
}

// ExtractErrorMessage reduces a provider error body to one message.
func ExtractErrorMessage(body []byte, fallback string) string {
	for _, extract := range extractors {
		if msg := extract(body); msg != "" {
			return msg
		}
	}
	// A short non-JSON body (proxy error pages, bare strings) is usable
	// as-is; a JSON body that matched no shape is not.
	if msg := strings.TrimSpace(string(body)); msg != "" && len(msg) <= 200 && !json.Valid(body) {
		return msg
	}
	return fallback
}

// Graph APIs (Facebook, Instagram): {"error": {"message": ..., "error_user_msg": ...}}
func extractGraphError(body []byte) string {
	var resp transfer.GraphErrorResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return ""
	}
	if resp.Error.ErrorUserMsg != "" {
		return resp.Error.ErrorUserMsg
	}
	return resp.Error.Message
}

// TikTok: {"error": {"code": "...", "message": "..."}} with code "ok" on success.
func extractTiktokError(body []byte) string {
	var resp struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return ""
	}
	if resp.Error.Code == "" || resp.Error.Code == "ok" {
		return ""
	}
	if resp.Error.Message != "" {
		return resp.Error.Message
	}
	return resp.Error.Code
}

// OAuth-style bodies: {"error": "...", "error_description": "..."}
func extractOAuthError(body []byte) string {
	var resp struct {
		ErrorDescription string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return ""
	}
	return resp.ErrorDescription
}

// Flat bodies: {"message": "..."} or {"error": "..."} with a string error.
func extractFlatError(body []byte) string {
	var resp struct {
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return ""
	}
	if resp.Message != "" {
		return resp.Message
	}
	var errStr string
	if json.Unmarshal(resp.Error, &errStr) == nil {
		return errStr
	}
	return ""
}
