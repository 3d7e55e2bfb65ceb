package summarizer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
)

const (
	baseMaxOutputTokens  int64 = 512
	limitMaxOutputTokens int64 = 2048

	DefaultModel = string(openai.ChatModelGPT5Mini2025_08_07)

	systemPrompt = `Summarize the article in 3-4 concise sentences.

Rules:
- Capture the main points and the key facts (dates, numbers, names).
- Neutral tone, no opinions.
- No lists, headings, markdown or introductory phrases.
- Output plain text in the same language as the input.`
)

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	// FlexTier requests the cheaper flex service tier.
	FlexTier bool
}

// OpenAIClient calls OpenAI's Responses API. The SDK's own retries are
// disabled; Summarizer owns the retry loop.
type OpenAIClient struct {
	client   openai.Client
	model    string
	flexTier bool
}

func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("api key is empty")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	return &OpenAIClient{
		client:   openai.NewClient(opts...),
		model:    model,
		flexTier: cfg.FlexTier,
	}, nil
}

// Complete performs one summary request. Incomplete responses cut by the
// output token limit are repeated with a larger limit within the same call.
func (c *OpenAIClient) Complete(ctx context.Context, input Input) (string, error) {
	text := strings.TrimSpace(input.Text)
	if text == "" {
		return "", &Error{Reason: "input is empty"}
	}

	userPromptBuilder := strings.Builder{}
	if sourceURL := strings.TrimSpace(input.SourceURL); sourceURL != "" {
		userPromptBuilder.WriteString("Source:\n")
		userPromptBuilder.WriteString(sourceURL)
		userPromptBuilder.WriteString("\n")
	}
	userPromptBuilder.WriteString("Content:\n")
	userPromptBuilder.WriteString(text)

	maxOutputTokens := baseMaxOutputTokens
	for {
		params := responses.ResponseNewParams{
			Model:           openai.ChatModel(c.model),
			MaxOutputTokens: openai.Int(maxOutputTokens),
			Instructions:    openai.String(systemPrompt),
			Input: responses.ResponseNewParamsInputUnion{
				OfString: openai.String(userPromptBuilder.String()),
			},
		}
		if isReasoningModel(c.model) {
			params.Reasoning = responses.ReasoningParam{
				Effort: openai.ReasoningEffortLow,
			}
		}
		if c.flexTier {
			params.ServiceTier = responses.ResponseNewParamsServiceTierFlex
		}

		resp, err := c.client.Responses.New(ctx, params)
		if err != nil {
			return "", classifyRequestError(err)
		}

		if resp.Status == "incomplete" {
			if resp.IncompleteDetails.Reason == "max_output_tokens" && maxOutputTokens < limitMaxOutputTokens {
				maxOutputTokens = min(maxOutputTokens*2, limitMaxOutputTokens)
				continue
			}

			return "", &Error{
				Reason: fmt.Sprintf(
					"response is incomplete (reason = %s, maxOutputTokens = %d)",
					resp.IncompleteDetails.Reason,
					maxOutputTokens,
				),
				Transient: resp.IncompleteDetails.Reason == "max_output_tokens",
			}
		}

		summary := strings.TrimSpace(resp.OutputText())
		if summary == "" {
			return "", &Error{
				Reason:    fmt.Sprintf("output text is missing (status = %s)", resp.Status),
				Transient: true,
			}
		}

		return summary, nil
	}
}

func classifyRequestError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &Error{
			Reason:    fmt.Sprintf("service responded with status %d", apiErr.StatusCode),
			Transient: isTransientStatus(apiErr.StatusCode),
			Err:       err,
		}
	}

	return fmt.Errorf("do request: %w", err)
}

func isReasoningModel(model string) bool {
	return strings.HasPrefix(model, "gpt-5") ||
		strings.HasPrefix(model, "o1") ||
		strings.HasPrefix(model, "o3") ||
		strings.HasPrefix(model, "o4")
}
