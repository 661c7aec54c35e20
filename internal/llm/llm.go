// Package llm asks an OpenAI-compatible model for suggested scores on a
// submitted attempt. Suggestions are advisory; evaluators still submit the
// final scores themselves.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pavelanni/quizdesk/internal/llm/prompts"
	"github.com/pavelanni/quizdesk/internal/model"
)

// Suggestion is the assistant's proposal for one answer, by answer index.
type Suggestion struct {
	Index    int     `json:"index"`
	Score    float64 `json:"score"`
	Feedback string  `json:"feedback"`
}

type response struct {
	Suggestions []Suggestion `json:"suggestions"`
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api     *openai.Client
	model   string
	variant prompts.Variant
}

// New creates a client. An empty baseURL uses the OpenAI default.
func New(baseURL, apiKey, modelName string, variant prompts.Variant) (*Client, error) {
	if modelName == "" {
		return nil, errors.New("llm: model name is required")
	}
	if variant == "" {
		variant = prompts.Standard
	}
	if !prompts.IsValidVariant(string(variant)) {
		return nil, fmt.Errorf("llm: unknown prompt variant %q", variant)
	}
	if err := prompts.Load(prompts.FS); err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:     openai.NewClientWithConfig(config),
		model:   modelName,
		variant: variant,
	}, nil
}

// Ping checks that the endpoint answers.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("LLM list models: %w", err)
	}
	return nil
}

// SuggestScores returns one suggestion per answer of a, ordered by index.
// keys maps question text to its answer key. Scores are clamped to
// [0, maxScore]; answers the model skipped get no suggestion.
func (c *Client) SuggestScores(ctx context.Context, a model.Attempt, keys map[string]string, maxScore float64) ([]Suggestion, error) {
	if len(a.Answers) == 0 {
		return []Suggestion{}, nil
	}
	items := make([]prompts.Item, len(a.Answers))
	for i, ans := range a.Answers {
		items[i] = prompts.Item{
			Index:         i,
			Topic:         ans.Topic,
			Question:      ans.Question,
			CorrectAnswer: keys[ans.Question],
			Answer:        string(ans.Answer),
		}
	}
	prompt, err := prompts.BuildSuggestPrompt(c.variant, a.SessionTitle, maxScore, items)
	if err != nil {
		return nil, fmt.Errorf("build prompt: %w", err)
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("LLM returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "attempt", a.ID, "raw", raw)

	var parsed response
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("parse LLM response: %w", err)
	}
	return normalize(parsed.Suggestions, len(a.Answers), maxScore), nil
}

// normalize drops out-of-range and duplicate indexes and clamps scores.
func normalize(in []Suggestion, n int, maxScore float64) []Suggestion {
	seen := make(map[int]bool, len(in))
	out := make([]Suggestion, 0, n)
	for _, s := range in {
		if s.Index < 0 || s.Index >= n || seen[s.Index] {
			continue
		}
		seen[s.Index] = true
		switch {
		case math.IsNaN(s.Score) || s.Score < 0:
			s.Score = 0
		case s.Score > maxScore:
			s.Score = maxScore
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}
