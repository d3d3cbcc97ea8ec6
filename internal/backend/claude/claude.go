package claude

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/goosewin/qforia/internal/backend"
)

const defaultMaxTokens = 8192

type Backend struct {
	maxTokens int64
}

func New() *Backend {
	return &Backend{maxTokens: defaultMaxTokens}
}

var _ backend.Backend = (*Backend)(nil)

func init() {
	if err := backend.Register("claude", New()); err != nil {
		panic(err)
	}
}

// SetMaxTokens overrides the response token limit.
func (b *Backend) SetMaxTokens(value int64) {
	if value <= 0 {
		return
	}
	b.maxTokens = value
}

func (b *Backend) CredentialKey() string {
	return "claude.api_key"
}

func (b *Backend) CheckCredential(apiKey string) error {
	if strings.TrimSpace(apiKey) == "" {
		return errors.New("anthropic API key is empty")
	}
	return nil
}

func (b *Backend) GetModels() []string {
	return []string{"claude-sonnet-4-5", "claude-opus-4-5", "claude-haiku-4-5"}
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

	client := anthropic.NewClient(option.WithAPIKey(opts.APIKey))
	message, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: b.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(opts.Prompt)),
		},
	})
	if err != nil {
		return "", classifyError(err)
	}

	var builder strings.Builder
	for _, block := range message.Content {
		if block.Type != "text" || block.Text == "" {
			continue
		}
		builder.WriteString(block.Text)
	}
	text := builder.String()
	if strings.TrimSpace(text) == "" {
		return "", errors.New("claude returned no text content")
	}
	return text, nil
}

func classifyError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		if backend.IsCredentialStatus(apiErr.StatusCode, "") {
			return fmt.Errorf("claude: %w (HTTP %d %s)", backend.ErrCredentialRejected, apiErr.StatusCode, http.StatusText(apiErr.StatusCode))
		}
		return fmt.Errorf("claude failed: HTTP %d %s: %w", apiErr.StatusCode, http.StatusText(apiErr.StatusCode), err)
	}
	return fmt.Errorf("claude failed: %w", err)
}
