package flows

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
)

// DefaultModel is used when AnthropicConfig.Model is empty.
const DefaultModel = "claude-sonnet-4-5-20250929"

// messageCreator is the part of *anthropic.Client the checker uses.
type messageCreator interface {
	CreateMessages(ctx context.Context, request anthropic.MessagesRequest) (anthropic.MessagesResponse, error)
}

// AnthropicConfig configures the model-backed checker.
type AnthropicConfig struct {
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// Anthropic asks a Claude model to review the records.
type Anthropic struct {
	client    messageCreator
	model     string
	maxTokens int
	timeout   time.Duration
}

// ErrNoAPIKey is returned by NewAnthropic when no key is configured.
var ErrNoAPIKey = errors.New("anthropic API key not configured")

// NewAnthropic returns a checker backed by the Anthropic Messages API.
func NewAnthropic(cfg AnthropicConfig) (*Anthropic, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	return newAnthropic(anthropic.NewClient(cfg.APIKey), cfg), nil
}

func newAnthropic(client messageCreator, cfg AnthropicConfig) *Anthropic {
	a := &Anthropic{client: client, model: cfg.Model, maxTokens: cfg.MaxTokens, timeout: cfg.Timeout}
	if a.model == "" {
		a.model = DefaultModel
	}
	if a.maxTokens <= 0 {
		a.maxTokens = 2000
	}
	if a.timeout <= 0 {
		a.timeout = 60 * time.Second
	}
	return a
}

// CheckCompliance implements ComplianceChecker.
func (a *Anthropic) CheckCompliance(ctx context.Context, in CheckInput) (CheckOutput, error) {
	if len(in.Records) == 0 {
		return CheckOutput{}, ErrNoRecords
	}
	prompt, err := buildPrompt(in)
	if err != nil {
		return CheckOutput{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	resp, err := a.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:     anthropic.Model(a.model),
		MaxTokens: a.maxTokens,
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{
				{Type: "text", Text: &prompt},
			}},
		},
	})
	if err != nil {
		return CheckOutput{}, fmt.Errorf("anthropic request: %w", err)
	}

	var result struct {
		Score    int       `json:"score"`
		Summary  string    `json:"summary"`
		Findings []Finding `json:"findings"`
	}
	text := extractJSON(extractTextFromResponse(resp))
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return CheckOutput{}, fmt.Errorf("parse model response: %w", err)
	}
	if result.Score < 0 || result.Score > 100 {
		return CheckOutput{}, fmt.Errorf("parse model response: score %d out of range", result.Score)
	}
	return CheckOutput{
		ProductID: in.ProductID,
		Score:     result.Score,
		Summary:   result.Summary,
		Findings:  result.Findings,
		Source:    "anthropic:" + a.model,
	}, nil
}

func buildPrompt(in CheckInput) (string, error) {
	records, err := json.MarshalIndent(in.Records, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode records: %w", err)
	}
	return fmt.Sprintf(`You review supply-chain trace records for an EU Digital Product Passport.

Product: %s

Each record is one material or component. parent_trace_id links a component
to the assembly it is part of; tier is its depth in the bill of materials.

## RECORDS
%s

Assess regulatory readiness. Consider unverified or rejected materials,
conflict minerals, missing suppliers, origin risk and recycled content.

Respond with JSON:
{
  "score": 0-100,
  "summary": "one or two sentences",
  "findings": [{"trace_id": "...", "severity": "info|warning|critical", "message": "..."}]
}

Return ONLY JSON.`, in.ProductID, records), nil
}

func extractTextFromResponse(resp anthropic.MessagesResponse) string {
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			return *block.Text
		}
	}
	return ""
}

func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}
