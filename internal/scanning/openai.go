package scanning

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/zombor/invoice-index/internal/extraction"
)

// OpenAI implements the Scanner interface using the OpenAI chat completions API
// with a strict JSON schema response format
type OpenAI struct {
	client  *openai.Client
	model   string
	schema  json.RawMessage
	coercer *extraction.Coercer
	opts    options
}

// NewOpenAI creates a new OpenAI Scanner instance. An empty baseURL uses the public API.
func NewOpenAI(apiKey, modelName, baseURL string, opts ...Option) (*OpenAI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if modelName == "" {
		modelName = openai.GPT4oMini
	}

	schema, err := json.Marshal(invoiceSchema(true))
	if err != nil {
		return nil, fmt.Errorf("marshaling schema: %w", err)
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}

	o := buildOptions(defaultTimeout, opts)
	return &OpenAI{
		client:  openai.NewClientWithConfig(cfg),
		model:   modelName,
		schema:  schema,
		coercer: extraction.NewCoercer(o.locale),
		opts:    o,
	}, nil
}

// Name returns "openai"
func (c *OpenAI) Name() string {
	return "openai"
}

// Config names the model and locale
func (c *OpenAI) Config() string {
	return config(c.Name(), c.model, c.opts)
}

// Fields asks the model for the invoice fields in the key lines of text
func (c *OpenAI) Fields(ctx context.Context, text string) (extraction.Fields, error) {
	reply, err := c.complete(ctx, openai.ChatCompletionRequest{
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: fieldsPrompt + KeyLines(text)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   schemaName,
				Schema: c.schema,
				Strict: true,
			},
		},
	})
	if err != nil {
		return extraction.Fields{}, err
	}

	fields, err := parseFields(reply, text, c.coercer)
	if err != nil {
		return extraction.Fields{}, fmt.Errorf("parsing invoice fields: %w", err)
	}
	return fields, nil
}

// Transcribe reads the text of a scanned PDF or image
func (c *OpenAI) Transcribe(ctx context.Context, data []byte, contentType string) (string, error) {
	img, err := preparePNG(data, contentType)
	if err != nil {
		return "", err
	}

	return c.complete(ctx, openai.ChatCompletionRequest{
		Messages: []openai.ChatCompletionMessage{{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: transcribePrompt},
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
					URL:    "data:image/png;base64," + base64.StdEncoding.EncodeToString(img),
					Detail: openai.ImageURLDetailHigh,
				}},
			},
		}},
	})
}

func (c *OpenAI) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.timeout)
	defer cancel()

	req.Model = c.model
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("creating chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from openai")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Close is a no-op for the HTTP client
func (c *OpenAI) Close() error {
	return nil
}
