package provider

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/victornm/greensafari/internal/domain"
	"github.com/victornm/greensafari/internal/errors"
)

const (
	systemPrompt = "You are an expert in African studies, creating educational quiz questions. " +
		"Provide accurate, engaging questions with detailed explanations for the correct answers."

	userPrompt = `Generate a multiple-choice quiz question about Africa related to the topic: %s.
Include a detailed explanation for the correct answer that helps users learn.
Format your response as a JSON object with the following structure:
{
  "question": "Your question here?",
  "options": ["Option A", "Option B", "Option C", "Option D"],
  "correctAnswer": "The correct option",
  "explanation": "A detailed explanation of why this is the correct answer and what we can learn from it"
}
Make sure the question is educational, factual, and appropriate for all ages.`

	noExplanation = "No explanation provided."
)

type Config struct {
	// Name identifies the provider in logs and metrics, e.g. openai or perplexity.
	Name    string
	APIKey  string
	BaseURL string
	Model   string
	// JSONMode asks the API for a JSON object response. Not every OpenAI-compatible API supports it.
	JSONMode    bool
	Temperature float32
	HTTPTimeout time.Duration
}

// Client generates quiz questions with an OpenAI-compatible chat completions API.
type Client struct {
	name        string
	model       string
	jsonMode    bool
	temperature float32
	api         *openai.Client
}

func New(c Config) *Client {
	cc := openai.DefaultConfig(c.APIKey)
	if c.BaseURL != "" {
		cc.BaseURL = c.BaseURL
	}

	if c.HTTPTimeout > 0 {
		cc.HTTPClient = &http.Client{Timeout: c.HTTPTimeout}
	}

	return &Client{
		name:        c.Name,
		model:       c.Model,
		jsonMode:    c.JSONMode,
		temperature: c.Temperature,
		api:         openai.NewClientWithConfig(cc),
	}
}

func (c *Client) Name() string {
	return c.name
}

// Generate asks the model for one question about topic. The returned question always carries topic.
func (c *Client) Generate(ctx context.Context, topic string) (domain.QuizQuestion, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf(userPrompt, topic)},
		},
	}
	if c.jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return domain.QuizQuestion{}, classify(c.name, err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return domain.QuizQuestion{}, fmt.Errorf("%s: empty completion", c.name)
	}

	q, err := Parse(resp.Choices[0].Message.Content)
	if err != nil {
		return domain.QuizQuestion{}, fmt.Errorf("%s: %w", c.name, err)
	}
	q.Topic = topic

	return q, nil
}

type completion struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer"`
	Explanation   string   `json:"explanation"`
}

// Parse decodes a question from a model reply. Markdown code fences around the JSON object are ignored.
func Parse(content string) (domain.QuizQuestion, error) {
	s := strings.TrimSpace(content)
	if i := strings.Index(s, "{"); i > 0 {
		s = s[i:]
	}
	if i := strings.LastIndex(s, "}"); i >= 0 && i < len(s)-1 {
		s = s[:i+1]
	}

	var cp completion
	if err := json.Unmarshal([]byte(s), &cp); err != nil {
		return domain.QuizQuestion{}, fmt.Errorf("parse completion: %w", err)
	}

	if cp.Question == "" || len(cp.Options) == 0 {
		return domain.QuizQuestion{}, fmt.Errorf("parse completion: question or options missing")
	}

	if cp.Explanation == "" {
		cp.Explanation = noExplanation
	}

	return domain.QuizQuestion{
		Question:      cp.Question,
		Options:       cp.Options,
		CorrectAnswer: cp.CorrectAnswer,
		Explanation:   cp.Explanation,
	}, nil
}

// classify marks quota and rate limit responses as CodeResourceExhausted.
func classify(name string, err error) error {
	status := 0

	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case stderrors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case stderrors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	if status == http.StatusTooManyRequests || status == http.StatusPaymentRequired {
		return errors.New(errors.CodeResourceExhausted,
			errors.WithMessagef("%s: quota exceeded: status=%d", name, status),
			errors.WithCause(err),
		)
	}

	return fmt.Errorf("%s: create chat completion: %w", name, err)
}
