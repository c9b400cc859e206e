package frappe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const methodPrefix = "/api/method/facturasend_integration.facturasend_integration.api."

// call posts args to a whitelisted method and decodes the "message" envelope
// into out.
func (c *Client) call(ctx context.Context, method string, args any, out any) error {
	body, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+methodPrefix+method, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "token "+c.apiKey+":"+c.apiSecret)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("frappe %s request: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return newHTTPStatusError(method, resp)
	}

	var envelope struct {
		Message json.RawMessage `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if len(envelope.Message) == 0 || string(envelope.Message) == "null" {
		return fmt.Errorf("frappe %s: %w", method, errEmptyMessage)
	}
	if err := json.Unmarshal(envelope.Message, out); err != nil {
		return fmt.Errorf("decode %s message: %w", method, err)
	}
	return nil
}

func newHTTPStatusError(method string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &HTTPStatusError{
		Operation:  method,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       string(body),
	}
}
