package scanning

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/zombor/invoice-index/internal/extraction"
)

// Ollama implements the Scanner interface using a local Ollama server
type Ollama struct {
	baseURL string
	model   string
	client  *http.Client
	coercer *extraction.Coercer
	opts    options
}

// NewOllama creates a new Ollama Scanner instance.
// Field extraction works with any chat model; transcription needs a vision
// model such as llava or qwen2-vl.
func NewOllama(baseURL string, modelName string, opts ...Option) (*Ollama, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if modelName == "" {
		modelName = "llava"
	}

	o := buildOptions(defaultOllamaTimeout, opts)
	return &Ollama{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   modelName,
		client:  &http.Client{Timeout: o.timeout},
		coercer: extraction.NewCoercer(o.locale),
		opts:    o,
	}, nil
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format,omitempty"`
	Options  map[string]any  `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

// Name returns "ollama"
func (o *Ollama) Name() string {
	return "ollama"
}

// Config names the model and locale
func (o *Ollama) Config() string {
	return config(o.Name(), o.model, o.opts)
}

// Fields asks the model for the invoice fields in the key lines of text
func (o *Ollama) Fields(ctx context.Context, text string) (extraction.Fields, error) {
	reply, err := o.chat(ctx, ollamaChatRequest{
		Format: "json",
		Messages: []ollamaMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: fieldsPrompt + KeyLines(text)},
		},
	})
	if err != nil {
		return extraction.Fields{}, err
	}

	fields, err := parseFields(reply, text, o.coercer)
	if err != nil {
		return extraction.Fields{}, fmt.Errorf("parsing invoice fields: %w", err)
	}
	return fields, nil
}

// Transcribe reads the text of a scanned PDF or image
func (o *Ollama) Transcribe(ctx context.Context, data []byte, contentType string) (string, error) {
	img, err := preparePNG(data, contentType)
	if err != nil {
		return "", err
	}

	return o.chat(ctx, ollamaChatRequest{
		Messages: []ollamaMessage{{
			Role:    "user",
			Content: transcribePrompt,
			Images:  []string{base64.StdEncoding.EncodeToString(img)},
		}},
	})
}

func (o *Ollama) chat(ctx context.Context, reqBody ollamaChatRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.opts.timeout)
	defer cancel()

	reqBody.Model = o.model
	reqBody.Stream = false
	reqBody.Options = map[string]any{"temperature": 0}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/api/chat", o.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling ollama API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, string(body))
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	return strings.TrimSpace(chatResp.Message.Content), nil
}

// Close is a no-op for the HTTP client
func (o *Ollama) Close() error {
	return nil
}
