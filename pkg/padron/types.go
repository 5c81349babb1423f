package padron

import (
	"context"
	"encoding/json"
	"time"
)

// Inspection is the wire form of one field inspection submitted to the
// padron service. The service correlates retries by ID; the agent never
// distinguishes transient failure from rejection.
type Inspection struct {
	ID       string `json:"id"`
	Location string `json:"ubicacion"`
	Date     string `json:"fecha"`
}

// SubmitResponse is the service's answer to one submission.
type SubmitResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Client is the surface the agent needs from the municipal padron API.
type Client interface {
	SubmitInspection(ctx context.Context, inspection Inspection) error
	FetchSession(ctx context.Context) (json.RawMessage, error)
	Ping(ctx context.Context) error
}

// ClientConfig configures the HTTP client.
type ClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}
