package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/complymatch/backend/internal/metrics"
	"github.com/complymatch/backend/internal/storage/models"
	"github.com/complymatch/backend/pkg/circuitbreaker"
	"github.com/complymatch/backend/pkg/logger"
	"github.com/complymatch/backend/pkg/retry"
)

// Result is what the external evidence evaluation emits for one response.
// The engine treats it as opaque input: validation happens at ingestion, not
// here.
type Result struct {
	EvidenceTier models.EvidenceTier
	AIScore      float64
	Confidence   float64
	Reasoning    string
}

// Client talks to the evidence-evaluation model. Calls run behind a circuit
// breaker with retries, like every external collaborator.
type Client struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

func NewClient(apiKey, model string, temperature float32, maxTokens, timeoutSec int) *Client {
	client := openai.NewClient(apiKey)

	cb := circuitbreaker.NewCircuitBreaker("evaluation", circuitbreaker.Config{
		MaxRequests:      5,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	if timeoutSec <= 0 {
		timeoutSec = 60
	}

	logger.Info("Evaluation client initialized", zap.String("model", model))

	return &Client{
		client:      client,
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		timeout:     time.Duration(timeoutSec) * time.Second,
		cb:          cb,
		retryConfig: retryConfig,
	}
}

const evaluationSystemPrompt = `You are a compliance evidence reviewer. Assess how well a submitted answer evidences the control asked about in the question.

Rate:
1. aiScore (0.0-1.0): how fully the answer demonstrates the control is in place
2. confidence (0.0-1.0): how certain you are in that rating
3. evidenceTier: STRONG, MODERATE, WEAK or NONE

Return JSON only:
{"evidenceTier": "MODERATE", "aiScore": 0.7, "confidence": 0.8, "reasoning": "short explanation"}`

// EvaluateResponse asks the model to grade one answer against its question.
func (c *Client) EvaluateResponse(ctx context.Context, questionPrompt, responseText string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	userPrompt := fmt.Sprintf("Question: %s\n\nSubmitted answer: %s\n\nEvaluate the evidence.", questionPrompt, responseText)

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: evaluationSystemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: userPrompt},
	}

	var result *Result

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.client.CreateChatCompletion(
				ctx,
				openai.ChatCompletionRequest{
					Model:       c.model,
					Messages:    messages,
					Temperature: c.temperature,
					MaxTokens:   c.maxTokens,
				},
			)

			if err != nil {
				return fmt.Errorf("failed to create completion: %w", err)
			}

			metrics.EvaluationTokensUsed.WithLabelValues(c.model, "prompt").Add(float64(resp.Usage.PromptTokens))
			metrics.EvaluationTokensUsed.WithLabelValues(c.model, "completion").Add(float64(resp.Usage.CompletionTokens))

			logger.Debug("Evaluation completion generated",
				zap.Int("prompt_tokens", resp.Usage.PromptTokens),
				zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			)

			parsed, err := parseResult(resp.Choices[0].Message.Content)
			if err != nil {
				return err
			}

			result = parsed
			return nil
		})
	})

	if err != nil {
		return nil, err
	}

	return result, nil
}

func parseResult(content string) (*Result, error) {
	// Models wrap JSON in prose or fences often enough to be worth trimming.
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in evaluation output")
	}

	var raw struct {
		EvidenceTier string  `json:"evidenceTier"`
		AIScore      float64 `json:"aiScore"`
		Confidence   float64 `json:"confidence"`
		Reasoning    string  `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(content[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse evaluation output: %w", err)
	}

	return &Result{
		EvidenceTier: models.EvidenceTier(strings.ToUpper(raw.EvidenceTier)),
		AIScore:      raw.AIScore,
		Confidence:   raw.Confidence,
		Reasoning:    raw.Reasoning,
	}, nil
}
