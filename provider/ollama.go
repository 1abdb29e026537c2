package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type ollamaProvider struct {
	host   string
	client *http.Client
}

type ollamaGenerateRequest struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	Images []string `json:"images,omitempty"`
	Stream bool     `json:"stream"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Model    string `json:"model"`
	Done     bool   `json:"done"`
	Error    string `json:"error"`
}

func newOllamaProvider(opts Options) (Provider, error) {
	host := strings.TrimRight(opts.OllamaHost, "/")
	if host == "" {
		host = "http://localhost:11434"
	}

	return &ollamaProvider{
		host: host,
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
	}, nil
}

func (p *ollamaProvider) Generate(ctx context.Context, req Request) (Response, error) {
	endpoint := p.host + "/api/generate"

	payload := ollamaGenerateRequest{
		Model:  req.Model,
		Prompt: req.Prompt,
		Stream: false,
	}
	for _, image := range req.Images {
		payload.Images = append(payload.Images, base64.StdEncoding.EncodeToString(image))
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Response{}, fmt.Errorf("marshal ollama request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("create ollama request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return Response{}, ClassifyDialError(endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, NewTransportError(KindBadResponse, endpoint, fmt.Errorf("read ollama response: %w", err))
	}

	if resp.StatusCode >= 400 {
		return Response{}, NewTransportError(KindBadResponse, endpoint,
			fmt.Errorf("ollama returned status %s: %s", resp.Status, strings.TrimSpace(string(data))))
	}

	var parsed ollamaGenerateResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return Response{}, NewTransportError(KindBadResponse, endpoint, fmt.Errorf("decode ollama response: %w", err))
	}
	if parsed.Error != "" {
		return Response{}, NewTransportError(KindBadResponse, endpoint, fmt.Errorf("ollama error: %s", parsed.Error))
	}

	return Response{
		Response: parsed.Response,
		Model:    parsed.Model,
		Raw:      json.RawMessage(data),
	}, nil
}

var _ Provider = (*ollamaProvider)(nil)
