package semantic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/openrouter"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/go-errors/errors"

	llmconfig "github.com/strrl/clusterlog/pkg/config"
	"github.com/strrl/clusterlog/pkg/store"
)

// Config holds configuration for the labeler.
type Config struct {
	APIKey     string
	Model      string
	HTTPClient *http.Client
}

// TemplateInput is a mined message template to be labeled.
//
// Pattern is the Drain template with variable tokens replaced by <*>, for
// example "Result of start operation for <*> on <*> failed". Samples are
// stored event messages covered by the template, prefixed with their host.
type TemplateInput struct {
	TemplateID string
	Pattern    string
	Samples    []string
}

// Label is the LLM-generated label for a template.
type Label struct {
	TemplateID  string `json:"template_id"`
	SemanticID  string `json:"semantic_id"`
	Description string `json:"description"`
}

// Labeler asks a chat model to name message templates.
type Labeler struct {
	model model.BaseChatModel
}

// NewLabeler creates a Labeler backed by OpenRouter in JSON mode.
func NewLabeler(ctx context.Context, config Config) (*Labeler, error) {
	chatModel, err := openrouter.NewChatModel(ctx, &openrouter.Config{
		APIKey:     config.APIKey,
		Model:      llmconfig.ResolveModel(config.Model),
		HTTPClient: config.HTTPClient,
		ResponseFormat: &openrouter.ChatCompletionResponseFormat{
			Type: openrouter.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, errors.Errorf("create chat model: %w", err)
	}
	return &Labeler{model: chatModel}, nil
}

// NewLabelerWithModel creates a Labeler around an existing chat model.
func NewLabelerWithModel(m model.BaseChatModel) *Labeler {
	return &Labeler{model: m}
}

// Label sends all templates to the LLM in a single call and returns their
// labels. Labels for unknown template IDs are dropped.
func (l *Labeler) Label(ctx context.Context, templates []TemplateInput) ([]Label, error) {
	if len(templates) == 0 {
		return nil, nil
	}

	resp, err := l.model.Generate(ctx, []*schema.Message{
		schema.UserMessage(buildPrompt(templates)),
	})
	if err != nil {
		return nil, errors.Errorf("generate: %w", err)
	}

	labels, err := parseResponse(resp.Content)
	if err != nil {
		return nil, errors.Errorf("parse LLM response: %w", err)
	}

	known := make(map[string]bool, len(templates))
	for _, t := range templates {
		known[t.TemplateID] = true
	}
	out := labels[:0]
	for _, lbl := range labels {
		if known[lbl.TemplateID] {
			out = append(out, lbl)
		}
	}
	return out, nil
}

func buildPrompt(templates []TemplateInput) string {
	var b strings.Builder
	b.WriteString(`You are an expert in Linux high-availability clusters (pacemaker, corosync). Given the following message templates mined from cluster error logs, generate a short semantic_id (kebab-case, max 30 chars) and a one-line description for each.

Output ONLY a JSON object with no markdown formatting. Use the exact template_id values provided below, like:
{"labels": [{"template_id": "<actual-template-id>", "semantic_id": "resource-start-failed", "description": "A cluster resource failed to start on a node"}]}

Templates:
`)

	for _, t := range templates {
		fmt.Fprintf(&b, "\nTemplate %s: %q\n", t.TemplateID, t.Pattern)
		if len(t.Samples) > 0 {
			b.WriteString("Samples:\n")
			for _, s := range t.Samples {
				fmt.Fprintf(&b, "  - %s\n", s)
			}
		}
	}

	return b.String()
}

// parseResponse accepts {"labels": [...]} and, from models that ignore the
// object instruction, a bare array.
func parseResponse(content string) ([]Label, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var wrapped struct {
		Labels []Label `json:"labels"`
	}
	if err := json.Unmarshal([]byte(content), &wrapped); err == nil {
		return wrapped.Labels, nil
	}

	var labels []Label
	if err := json.Unmarshal([]byte(content), &labels); err != nil {
		return nil, errors.Errorf("JSON decode (content=%q): %w", content[:min(len(content), 200)], err)
	}
	return labels, nil
}

// samplesPerTemplate bounds the example messages sent per template.
const samplesPerTemplate = 3

// LabelRun labels every mined template of runID and stores the labels.
func LabelRun(ctx context.Context, s store.Store, l *Labeler, runID string) ([]Label, error) {
	summaries, err := s.TemplateSummaries(ctx, runID)
	if err != nil {
		return nil, errors.Errorf("load templates: %w", err)
	}

	inputs := make([]TemplateInput, 0, len(summaries))
	for _, ts := range summaries {
		events, err := s.QueryEvents(ctx, store.QueryOpts{RunID: runID, TemplateID: ts.TemplateID, Limit: samplesPerTemplate})
		if err != nil {
			return nil, errors.Errorf("load samples: %w", err)
		}
		in := TemplateInput{TemplateID: ts.TemplateID, Pattern: ts.Pattern}
		for _, e := range events {
			in.Samples = append(in.Samples, e.Host+": "+e.Message)
		}
		inputs = append(inputs, in)
	}

	labels, err := l.Label(ctx, inputs)
	if err != nil {
		return nil, err
	}

	updates := make([]store.Template, 0, len(labels))
	for _, lbl := range labels {
		updates = append(updates, store.Template{
			RunID:       runID,
			TemplateID:  lbl.TemplateID,
			SemanticID:  lbl.SemanticID,
			Description: lbl.Description,
		})
	}
	if err := s.UpdateTemplateLabels(ctx, updates); err != nil {
		return nil, errors.Errorf("store labels: %w", err)
	}
	return labels, nil
}
