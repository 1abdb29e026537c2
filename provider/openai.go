package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

type openAIProvider struct {
	client *openai.Client
}

func newOpenAIProvider(opts Options) (Provider, error) {
	if opts.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("openai provider selected but OPENAI_API_KEY not set")
	}

	cfg := openai.DefaultConfig(opts.OpenAIAPIKey)
	if opts.OpenAIBaseURL != "" {
		cfg.BaseURL = opts.OpenAIBaseURL
	}

	return &openAIProvider{client: openai.NewClientWithConfig(cfg)}, nil
}

func (p *openAIProvider) Generate(ctx context.Context, req Request) (Response, error) {
	message := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}

	if len(req.Images) == 0 {
		message.Content = req.Prompt
	} else {
		parts := make([]openai.ChatMessagePart, 0, len(req.Images)+1)
		for _, image := range req.Images {
			parts = append(parts, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(image),
				},
			})
		}
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeText,
			Text: req.Prompt,
		})
		message.MultiContent = parts
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: []openai.ChatCompletionMessage{message},
	})
	if err != nil {
		return Response{}, classifyOpenAIError(err)
	}

	if len(resp.Choices) == 0 {
		return Response{}, NewTransportError(KindBadResponse, "openai", errors.New("chat completion returned no choices"))
	}

	converted := Response{
		Response: resp.Choices[0].Message.Content,
		Model:    resp.Model,
	}
	if raw, marshalErr := json.Marshal(resp); marshalErr == nil {
		converted.Raw = raw
	}

	return converted, nil
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return NewTransportError(KindBadResponse, "openai", err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return NewTransportError(KindBadResponse, "openai", err)
	}
	return ClassifyDialError("openai", err)
}

var _ Provider = (*openAIProvider)(nil)
