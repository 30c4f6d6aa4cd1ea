package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/conference-registration/internal/model"
)

// HTTPGateway talks to a REST payment gateway that accepts
// POST {base}/v1/orders with basic auth and returns {"id": "..."}.
type HTTPGateway struct {
	baseURL   string
	keyID     string
	keySecret string
	client    *http.Client
}

// NewHTTPGateway constructs an HTTPGateway. The broker bounds each call with
// a deadline, so client may be http.DefaultClient.
func NewHTTPGateway(baseURL, keyID, keySecret string, client *http.Client) *HTTPGateway {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPGateway{
		baseURL:   strings.TrimRight(baseURL, "/"),
		keyID:     keyID,
		keySecret: keySecret,
		client:    client,
	}
}

type createOrderBody struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type createOrderReply struct {
	ID    string `json:"id"`
	Error *struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error,omitempty"`
}

// CreateOrder implements Gateway.
func (g *HTTPGateway) CreateOrder(ctx context.Context, req OrderRequest) (string, error) {
	payload, err := json.Marshal(createOrderBody{
		Amount:   req.Amount,
		Currency: string(req.Currency),
		Receipt:  req.Receipt,
		Notes:    req.Notes,
	})
	if err != nil {
		return "", fmt.Errorf("marshal order: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/orders", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build order request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(g.keyID, g.keySecret)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		// Transport failures and deadlines are the gateway being unreachable.
		return "", fmt.Errorf("%w: %w", model.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: read reply: %w", model.ErrGatewayUnavailable, err)
	}
	if resp.StatusCode >= 500 {
		return "", fmt.Errorf("%w: status %d", model.ErrGatewayUnavailable, resp.StatusCode)
	}

	var reply createOrderReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return "", fmt.Errorf("decode gateway reply (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode >= 400 {
		if reply.Error != nil {
			return "", fmt.Errorf("gateway rejected order: %s: %s", reply.Error.Code, reply.Error.Description)
		}
		return "", fmt.Errorf("gateway rejected order: status %d", resp.StatusCode)
	}
	if reply.ID == "" {
		return "", errors.New("gateway reply missing order id")
	}
	return reply.ID, nil
}

// SandboxGateway issues order ids locally for development and tests. It
// records every request it receives.
type SandboxGateway struct {
	mu       sync.Mutex
	requests []OrderRequest
	// Err, when set, is returned by CreateOrder instead of an id.
	Err error
}

// NewSandboxGateway returns a SandboxGateway.
func NewSandboxGateway() *SandboxGateway {
	return &SandboxGateway{}
}

// CreateOrder implements Gateway.
func (s *SandboxGateway) CreateOrder(ctx context.Context, req OrderRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", model.ErrGatewayUnavailable, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return "", s.Err
	}
	s.requests = append(s.requests, req)
	return "order_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:14], nil
}

// Requests returns the orders opened so far.
func (s *SandboxGateway) Requests() []OrderRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]OrderRequest(nil), s.requests...)
}
