package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/goosewin/qforia/internal/backend"
	"google.golang.org/genai"
)

type Backend struct {
	temperature float32
}

func New() *Backend {
	return &Backend{temperature: 1.0}
}

var _ backend.Backend = (*Backend)(nil)

func init() {
	if err := backend.Register("gemini", New()); err != nil {
		panic(err)
	}
}

// SetTemperature overrides the sampling temperature used for generation.
func (b *Backend) SetTemperature(value float32) {
	if value < 0 {
		return
	}
	b.temperature = value
}

func (b *Backend) CredentialKey() string {
	return "gemini.api_key"
}

func (b *Backend) CheckCredential(apiKey string) error {
	if strings.TrimSpace(apiKey) == "" {
		return errors.New("gemini API key is empty")
	}
	return nil
}

func (b *Backend) GetModels() []string {
	return []string{"gemini-2.5-flash", "gemini-2.5-pro", "gemini-2.0-flash", "gemini-1.5-flash-latest"}
}

func (b *Backend) Generate(ctx context.Context, opts backend.GenerateOptions) (string, error) {
	if strings.TrimSpace(opts.Prompt) == "" {
		return "", errors.New("prompt is required")
	}
	if err := b.CheckCredential(opts.APIKey); err != nil {
		return "", err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = backend.DefaultModel(b)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", fmt.Errorf("create gemini client: %w", err)
	}

	resp, err := client.Models.GenerateContent(ctx, model, genai.Text(opts.Prompt), &genai.GenerateContentConfig{
		Temperature: genai.Ptr(b.temperature),
	})
	if err != nil {
		return "", classifyError(err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", errors.New("gemini returned no text")
	}
	return text, nil
}

func classifyError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && backend.IsCredentialStatus(apiErr.Code, apiErr.Message) {
		return fmt.Errorf("gemini: %w: %s", backend.ErrCredentialRejected, strings.TrimSpace(apiErr.Message))
	}
	return fmt.Errorf("gemini failed: %w", err)
}
