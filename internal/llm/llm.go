package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Draft holds the issue fields extracted from free-form notes.
type Draft struct {
	Project     string `json:"project"`
	IssueType   string `json:"issueType"`
	Summary     string `json:"summary"`
	Description string `json:"description"`
	DueDate     string `json:"dueDate"` // YYYY-MM-DD or empty
}

// ProjectOption describes one project the model can assign a draft to.
type ProjectOption struct {
	Key        string
	Name       string
	IssueTypes []string
}

// Client wraps the Anthropic API for issue drafting.
type Client struct {
	api   *anthropic.Client
	model anthropic.Model
}

// NewClient creates an LLM client with the given API key and model.
func NewClient(apiKey, model string) *Client {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	return &Client{
		api:   &client,
		model: anthropic.Model(model),
	}
}

// buildDraftPrompt constructs the system and user prompts for drafting
// Backlog issues from notes.
func buildDraftPrompt(content string, projects []ProjectOption) (system string, user string) {
	system = `You draft Backlog issues from free-form notes. Return ONLY a JSON array of objects with these fields:
- "project": the project key the issue belongs to (pick from the known projects list; leave empty if unclear)
- "issueType": one of the project's issue type names (leave empty if unclear)
- "summary": concise one-line issue summary
- "description": brief description of the work (can be empty if the summary is self-explanatory)
- "dueDate": a date in YYYY-MM-DD format if the notes name or clearly imply a deadline, otherwise empty

Rules:
- Each actionable item in the notes is one issue
- Never invent deadlines: only fill dueDate when the notes state one
- Keep summaries under 100 characters
- Return valid JSON only, no markdown fencing or explanation`

	var sb strings.Builder
	if len(projects) > 0 {
		sb.WriteString("Known projects:\n")
		for _, p := range projects {
			sb.WriteString("- ")
			sb.WriteString(p.Key)
			if p.Name != "" {
				sb.WriteString(" (")
				sb.WriteString(p.Name)
				sb.WriteString(")")
			}
			if len(p.IssueTypes) > 0 {
				sb.WriteString(", issue types: ")
				sb.WriteString(strings.Join(p.IssueTypes, ", "))
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("Draft issues from these notes:\n\n")
	sb.WriteString(content)
	user = sb.String()
	return
}

// DraftIssues sends notes to the LLM and returns structured drafts.
func (c *Client) DraftIssues(ctx context.Context, content string, projects []ProjectOption) ([]Draft, error) {
	systemPrompt, userPrompt := buildDraftPrompt(content, projects)

	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 4096,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic API call: %w", err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return nil, fmt.Errorf("no text content in API response")
	}

	var drafts []Draft
	if err := json.Unmarshal([]byte(stripFence(text)), &drafts); err != nil {
		return nil, fmt.Errorf("parse LLM response as JSON: %w\nraw response: %s", err, text)
	}
	return drafts, nil
}

// stripFence removes markdown code fencing if the model added any.
func stripFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.SplitN(text, "\n", 2)
	if len(lines) > 1 {
		text = lines[1]
	}
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}
