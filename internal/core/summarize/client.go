package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/markdave123-py/Procura/internal/core"
	"github.com/markdave123-py/Procura/internal/logger"
)

const systemPrompt = "You are a government contracting expert. Extract key " +
	"information from the contract document and respond with valid JSON only."

const userPromptHeader = `Analyze this government contract document and return a JSON object with:
title, document_type, agency, contract_number, due_date, description,
key_requirements, estimated_value, naics_codes, set_aside, location,
contact_info, summary.

Return only valid JSON, no additional text.

Document content:
`

// Client calls the external summarization endpoint with the whole
// extracted text in a single request; the service's large-context
// handling does the heavy lifting, no chunking on this side.
type Client struct {
	apiURL     string
	apiKey     string
	model      string
	timeout    time.Duration
	httpClient *http.Client
}

var _ core.Summarizer = (*Client)(nil)

func NewClient(apiURL, apiKey, model string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 150 * time.Second
	}
	return &Client{
		apiURL:  apiURL,
		apiKey:  apiKey,
		model:   model,
		timeout: timeout,
		httpClient: &http.Client{
			// Per-call deadline comes from the request context; this is
			// only a safety net above it.
			Timeout: timeout + 30*time.Second,
		},
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Summarize races the API call against the configured wall-clock timeout
// and validates/repairs the response before returning it.
func (c *Client) Summarize(ctx context.Context, text string) (*core.SummaryResult, error) {
	words := len(strings.Fields(text))
	logger.Debug(ctx, "summarization request",
		"words", words, "approx_tokens", int(float64(words)/0.75))

	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPromptHeader + text},
		},
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(cctx, http.MethodPost, c.apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// The umbrella ctx owns cancellation; only our own deadline maps
		// to the timeout kind so the orchestrator can retry differently.
		if cctx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return nil, fmt.Errorf("%w after %s", core.ErrSummarizationTimeout, c.timeout)
		}
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("summarizer API error: %d - %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	payload, err := extractPayload(body)
	if err != nil {
		return nil, err
	}

	return ParsePayload(payload), nil
}

// extractPayload validates response shape and unwraps the OpenAI-style
// envelope when present. Each malformed shape is a distinct error.
func extractPayload(body []byte) (string, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return "", fmt.Errorf("%w: empty body", core.ErrInvalidSummaryResponse)
	}

	var envelope chatResponse
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Choices) > 0 {
		content := envelope.Choices[0].Message.Content
		if content == nil {
			return "", fmt.Errorf("%w: missing message content", core.ErrInvalidSummaryResponse)
		}
		if strings.TrimSpace(*content) == "" {
			return "", fmt.Errorf("%w: empty payload", core.ErrInvalidSummaryResponse)
		}
		return *content, nil
	}

	// Not the chat envelope; the service may also return the JSON body
	// directly.
	return string(body), nil
}
