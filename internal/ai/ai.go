package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

const (
	defaultModel    = "gemini-1.5-flash"
	maxOutputTokens = 600
)

// ErrInvocationFailed wraps every failure of the external call.
var ErrInvocationFailed = errors.New("listing generation failed")

// Image is one prepared upload, forwarded to the model as inline data.
type Image struct {
	MIMEType string
	Data     []byte
}

// Result is the raw model answer. TotalTokens is nil when the API did not report usage.
type Result struct {
	Text        string
	TotalTokens *int
}

// Service holds the Gemini client used to write listings.
type Service struct {
	client *genai.Client
	model  string
	log    *zap.Logger
}

// NewService initializes the Gemini client.
func NewService(ctx context.Context, apiKey, model string, log *zap.Logger) (*Service, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	if model == "" {
		model = defaultModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &Service{client: client, model: model, log: log.Named("ai")}, nil
}

func (s *Service) Close() error {
	return s.client.Close()
}

// Generate sends all images in one request and returns the listing text.
// The deadline comes from ctx.
func (s *Service) Generate(ctx context.Context, images []Image) (Result, error) {
	model := s.client.GenerativeModel(s.model)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(SystemPrompt)}}
	model.SetMaxOutputTokens(maxOutputTokens)

	resp, err := model.GenerateContent(ctx, buildParts(images)...)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvocationFailed, err)
	}

	res, err := resultFrom(resp)
	if err != nil {
		return Result{}, err
	}

	fields := []zap.Field{zap.String("model", s.model), zap.Int("images", len(images))}
	if res.TotalTokens != nil {
		fields = append(fields, zap.Int("total_tokens", *res.TotalTokens))
	}
	s.log.Debug("listing generated", fields...)
	return res, nil
}

func buildParts(images []Image) []genai.Part {
	parts := make([]genai.Part, 0, len(images)+1)
	parts = append(parts, genai.Text(UserInstruction))
	for _, img := range images {
		parts = append(parts, genai.Blob{MIMEType: img.MIMEType, Data: img.Data})
	}
	return parts
}

func resultFrom(resp *genai.GenerateContentResponse) (Result, error) {
	if resp == nil {
		return Result{}, fmt.Errorf("%w: empty response", ErrInvocationFailed)
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
		return Result{}, fmt.Errorf("%w: prompt blocked (%s)", ErrInvocationFailed, resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return Result{}, fmt.Errorf("%w: no candidates returned", ErrInvocationFailed)
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}

	res := Result{Text: b.String()}
	if resp.UsageMetadata != nil {
		total := int(resp.UsageMetadata.TotalTokenCount)
		res.TotalTokens = &total
	}
	return res, nil
}
