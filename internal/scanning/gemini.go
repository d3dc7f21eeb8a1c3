package scanning

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/zombor/invoice-index/internal/extraction"
)

// Gemini implements the Scanner interface using Google Gemini
type Gemini struct {
	client    *genai.Client
	model     *genai.GenerativeModel
	modelName string
	coercer   *extraction.Coercer
	opts      options
}

// NewGemini creates a new Gemini Scanner instance
func NewGemini(apiKey string, modelName string, opts ...Option) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(0)
	model.SystemInstruction = genai.NewUserContent(genai.Text(systemPrompt))

	o := buildOptions(defaultTimeout, opts)
	return &Gemini{
		client:    client,
		model:     model,
		modelName: modelName,
		coercer:   extraction.NewCoercer(o.locale),
		opts:      o,
	}, nil
}

// Name returns "gemini"
func (g *Gemini) Name() string {
	return "gemini"
}

// Config names the model and locale
func (g *Gemini) Config() string {
	return config(g.Name(), g.modelName, g.opts)
}

// Fields asks the model for the invoice fields in the key lines of text
func (g *Gemini) Fields(ctx context.Context, text string) (extraction.Fields, error) {
	reply, err := g.generate(ctx, genai.Text(fieldsPrompt+KeyLines(text)))
	if err != nil {
		return extraction.Fields{}, err
	}

	fields, err := parseFields(reply, text, g.coercer)
	if err != nil {
		return extraction.Fields{}, fmt.Errorf("parsing invoice fields: %w", err)
	}
	return fields, nil
}

// Transcribe reads the text of a scanned PDF or image
func (g *Gemini) Transcribe(ctx context.Context, data []byte, contentType string) (string, error) {
	img, err := preparePNG(data, contentType)
	if err != nil {
		return "", err
	}

	// genai.ImageData expects just the format suffix, not the full MIME type
	return g.generate(ctx, genai.ImageData("png", img), genai.Text(transcribePrompt))
}

func (g *Gemini) generate(ctx context.Context, parts ...genai.Part) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.opts.timeout)
	defer cancel()

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("generating content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no response from gemini")
	}

	var out strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			out.WriteString(string(text))
		}
	}
	return strings.TrimSpace(out.String()), nil
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}
