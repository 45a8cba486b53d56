package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// maxPromptContent caps how much article text is sent to the analysis
// collaborator per request.
const maxPromptContent = 10000

const analysisSystemPrompt = `You are an industry analyst for software development tools.
Analyze the article and extract every tool mentioned, the sentiment and relevance of each mention,
the overall sentiment, and an importance score from 0 to 10.
Return ONLY a valid JSON object with the fields:
title, summary, source, category, tags, tool_mentions (array of {tool, context, sentiment, relevance}),
overall_sentiment, importance_score.`

// HTTPAnalyzer calls an OpenRouter-compatible chat completions endpoint
// to extract tool mentions and sentiment from article content.
type HTTPAnalyzer struct {
	endpoint string
	apiKey   string
	model    string
	client   *http.Client
	logger   *slog.Logger
}

// NewHTTPAnalyzer creates an analyzer client. The timeout bounds the full
// request; on expiry the error wraps ErrAnalyzerUnavailable so the
// pipeline degrades instead of failing the operation.
func NewHTTPAnalyzer(endpoint, apiKey, model string, timeout time.Duration, logger *slog.Logger) *HTTPAnalyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPAnalyzer{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Analyze sends the content to the collaborator and parses the structured
// analysis from its response.
func (a *HTTPAnalyzer) Analyze(ctx context.Context, content string) (*Analysis, error) {
	if len(content) > maxPromptContent {
		content = content[:maxPromptContent]
	}

	body, err := json.Marshal(chatRequest{
		Model: a.model,
		Messages: []chatMessage{
			{Role: "system", Content: analysisSystemPrompt},
			{Role: "user", Content: content},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return nil, fmt.Errorf("encode analysis request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build analysis request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		a.logger.Warn("analysis collaborator request failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrAnalyzerUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		a.logger.Warn("analysis collaborator returned error status",
			"status", resp.StatusCode,
			"body", string(snippet))
		return nil, fmt.Errorf("%w: status %d", ErrAnalyzerUnavailable, resp.StatusCode)
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrAnalyzerUnavailable, err)
	}
	if len(chat.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrAnalyzerUnavailable)
	}

	analysis, err := parseAnalysis(chat.Choices[0].Message.Content)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAnalyzerUnavailable, err)
	}
	return analysis, nil
}

// parseAnalysis extracts the JSON analysis object from the model output,
// tolerating markdown code fences, and validates value ranges.
func parseAnalysis(raw string) (*Analysis, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var analysis Analysis
	if err := json.Unmarshal([]byte(raw), &analysis); err != nil {
		return nil, fmt.Errorf("analysis is not valid JSON: %w", err)
	}
	if err := validateAnalysis(&analysis); err != nil {
		return nil, err
	}
	return &analysis, nil
}

func validateAnalysis(a *Analysis) error {
	if a.Title == "" {
		return errors.New("analysis missing title")
	}
	if a.OverallSentiment < -1 || a.OverallSentiment > 1 {
		return fmt.Errorf("overall_sentiment %f out of range", a.OverallSentiment)
	}
	if a.ImportanceScore < 0 || a.ImportanceScore > 10 {
		return fmt.Errorf("importance_score %f out of range", a.ImportanceScore)
	}
	for _, m := range a.ToolMentions {
		if m.Tool == "" {
			return errors.New("tool mention missing name")
		}
		if m.Sentiment < -1 || m.Sentiment > 1 {
			return fmt.Errorf("mention sentiment %f out of range for %s", m.Sentiment, m.Tool)
		}
		if m.Relevance < 0 || m.Relevance > 1 {
			return fmt.Errorf("mention relevance %f out of range for %s", m.Relevance, m.Tool)
		}
	}
	return nil
}
