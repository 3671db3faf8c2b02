package polish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// RemotePolisher delegates polishing to the vocalwrite backend.
type RemotePolisher struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewRemotePolisher(baseURL string, apiKey string, client *http.Client) *RemotePolisher {
	if client == nil {
		client = &http.Client{Timeout: 90 * time.Second}
	}
	return &RemotePolisher{
		endpoint: strings.TrimRight(baseURL, "/") + "/api/polish-text",
		apiKey:   apiKey,
		client:   client,
	}
}

func (p *RemotePolisher) Polish(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyText
	}

	buf, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return "", fmt.Errorf("encode polish request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(buf))
	if err != nil {
		return "", fmt.Errorf("build polish request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request polish: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read polish response: %w", err)
	}

	var payload struct {
		PolishedText string `json:"polishedText"`
		Error        string `json:"error"`
	}
	_ = json.Unmarshal(body, &payload)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if payload.Error != "" {
			return "", fmt.Errorf("polish request failed (%d): %s", resp.StatusCode, payload.Error)
		}
		return "", fmt.Errorf("polish request failed with status %d", resp.StatusCode)
	}
	if payload.PolishedText == "" {
		return "", errors.New("polish response did not contain text")
	}
	return payload.PolishedText, nil
}
