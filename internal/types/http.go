package types

import (
	"strings"
	"time"
)

// ResponseMetadata is what the network layer knows about a response before
// its body is read.
type ResponseMetadata struct {
	Method       string            `json:"method"`
	Status       int               `json:"status"`
	ResourceType string            `json:"resource_type,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
}

// Header returns the value of the named header, ignoring case.
func (m ResponseMetadata) Header(name string) string {
	if v, ok := m.Headers[name]; ok {
		return v
	}
	for k, v := range m.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// Successful reports whether the response is a completed GET with a 2xx status.
func (m ResponseMetadata) Successful() bool {
	return strings.EqualFold(m.Method, "GET") && m.Status >= 200 && m.Status < 300
}

// Observation is a response-metadata event for a request issued by a tab.
type Observation struct {
	Timestamp time.Time        `json:"timestamp"`
	RequestID string           `json:"request_id"`
	TabID     TabID            `json:"tab_id"`
	URL       string           `json:"url"`
	Response  ResponseMetadata `json:"response"`
}

// PendingRequest tracks an in-flight request waiting for its response.
type PendingRequest struct {
	URL       string
	Method    string
	Timestamp time.Time
}
