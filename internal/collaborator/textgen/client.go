// Package textgen calls an external generateContent-style endpoint to turn
// sales data into a short narrative report.
package textgen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/tableside/internal/config"
)

const (
	// MissingKeyMessage is returned when no API key is configured.
	MissingKeyMessage = "AI report is not configured: set TEXTGEN_API_KEY to enable narrative reports."
	// FailureMessage is returned when the endpoint cannot produce a report.
	FailureMessage = "Could not generate the AI report. Check the connection or the API key."
)

const promptTemplate = `Act as an experienced restaurant manager. Analyse the sales data below from a beach kiosk and write an executive summary.

Sales data: %s

The report must contain:
1. A summary of total revenue.
2. The best-selling item.
3. A suggestion to improve stock or sales based on the data.
4. Markdown formatting. Be concise and professional.`

// Module provides the client to Fx.
var Module = fx.Provide(New)

// Client talks to the text-generation endpoint.
type Client struct {
	http   *resty.Client
	apiKey string
	model  string
	logger *zap.Logger
}

// New builds a client from configuration.
func New(cfg config.Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.TextGen.Endpoint, "/")).
		SetHeader("Content-Type", "application/json")
	if cfg.TextGen.Timeout > 0 {
		httpClient.SetTimeout(cfg.TextGen.Timeout)
	}
	return &Client{
		http:   httpClient,
		apiKey: strings.TrimSpace(cfg.TextGen.APIKey),
		model:  cfg.TextGen.Model,
		logger: logger,
	}
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Generate sends prompt and returns the first candidate's text.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if !c.Configured() {
		return "", errors.New("textgen: api key not configured")
	}

	var (
		result generateResponse
		failed apiError
	)
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("key", c.apiKey).
		SetPathParam("model", c.model).
		SetBody(generateRequest{Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}}}).
		SetResult(&result).
		SetError(&failed).
		Post("/models/{model}:generateContent")
	if err != nil {
		return "", fmt.Errorf("textgen request: %w", err)
	}
	if resp.IsError() {
		msg := failed.Error.Message
		if msg == "" {
			msg = resp.Status()
		}
		return "", fmt.Errorf("textgen status %d: %s", resp.StatusCode(), msg)
	}

	var b strings.Builder
	for _, candidate := range result.Candidates {
		for _, p := range candidate.Content.Parts {
			b.WriteString(p.Text)
		}
		if b.Len() > 0 {
			break
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", errors.New("textgen: empty response")
	}
	return text, nil
}

// SalesReport asks for a manager-style summary of salesData. It never fails:
// a missing key or any error yields a message that can be shown to the user.
func (c *Client) SalesReport(ctx context.Context, salesData any) string {
	if !c.Configured() {
		c.logger.Warn("text generation key not configured")
		return MissingKeyMessage
	}
	payload, err := json.Marshal(salesData)
	if err != nil {
		c.logger.Error("encode sales data", zap.Error(err))
		return FailureMessage
	}
	text, err := c.Generate(ctx, fmt.Sprintf(promptTemplate, payload))
	if err != nil {
		c.logger.Error("text generation failed", zap.Error(err))
		return FailureMessage
	}
	return text
}

// IsFallback reports whether text is one of the user-safe failure messages
// rather than generated content.
func IsFallback(text string) bool {
	return text == MissingKeyMessage || text == FailureMessage
}
