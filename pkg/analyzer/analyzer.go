package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/cloudwego/eino-ext/adk/backend/local"
	"github.com/cloudwego/eino-ext/components/model/openrouter"
	"github.com/cloudwego/eino/adk"
	fsmw "github.com/cloudwego/eino/adk/middlewares/filesystem"
	"github.com/cloudwego/eino/schema"
	"github.com/go-errors/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/strrl/clusterlog/pkg/analyzer/workspace"
	"github.com/strrl/clusterlog/pkg/config"
)

// maxIterations bounds the agent's tool-use loop.
const maxIterations = 15

func buildSystemPrompt(workDir string) string {
	return fmt.Sprintf(`You are an expert in Linux high-availability clusters (pacemaker, corosync, fencing) helping an operator troubleshoot a cluster incident.

Your workspace at %[1]s contains the output of a log scan:
- %[1]s/%[2]s — describes every file in the workspace; read it first
- %[1]s/%[3]s — error counts per host, failure pattern, source file and hour
- %[1]s/%[4]s — matched messages grouped into templates with samples
- %[1]s/%[5]s/ — one time-sorted event file per host
- %[1]s/%[6]s — every matched raw line grouped by source file

Start with %[2]s and %[3]s, then use grep and read_file to follow individual hosts around the busiest hours.
You can also use the execute tool to run shell commands (e.g., awk, sort, wc) for deeper analysis.

Provide:
1. Timeline of the incident across hosts
2. The failure patterns that matter and which nodes they hit
3. Root cause analysis (if a question is provided, answer it)
4. Suggested next steps

Be concise and actionable. Focus on what matters.`,
		workDir, workspace.AgentsFile, workspace.ReportFile, workspace.TemplatesFile, workspace.HostsDir, workspace.MatchesFile)
}

// Config holds configuration for the analyzer.
type Config struct {
	APIKey string
	Model  string
}

// Analyze runs the explain agent over an already built workspace and
// returns its answer.
func Analyze(ctx context.Context, cfg Config, workDir, question string) (string, error) {
	cfg.Model = config.ResolveModel(cfg.Model)

	absDir, err := filepath.Abs(workDir)
	if err != nil {
		return "", errors.Errorf("resolve workspace dir: %w", err)
	}
	if _, err := os.Stat(filepath.Join(absDir, workspace.AgentsFile)); err != nil {
		return "", errors.Errorf("workspace %s is not built: %w", absDir, err)
	}

	fmt.Fprintf(os.Stderr, "Analyzing with model %s...\n", cfg.Model)

	if err := preflightCheck(ctx, cfg); err != nil {
		return "", err
	}

	chatModel, err := openrouter.NewChatModel(ctx, &openrouter.Config{
		APIKey:     cfg.APIKey,
		Model:      cfg.Model,
		HTTPClient: newHTTPClient(),
	})
	if err != nil {
		return "", errors.Errorf("create chat model: %w", err)
	}

	backend, err := local.NewBackend(ctx, &local.Config{})
	if err != nil {
		return "", errors.Errorf("create local backend: %w", err)
	}

	fsMiddleware, err := fsmw.NewMiddleware(ctx, &fsmw.Config{
		Backend: backend,
	})
	if err != nil {
		return "", errors.Errorf("create filesystem middleware: %w", err)
	}

	agent, err := adk.NewChatModelAgent(ctx, &adk.ChatModelAgentConfig{
		Name:          "cluster-log-explainer",
		Description:   "Explains cluster failures from scanned logs",
		Instruction:   buildSystemPrompt(absDir),
		Model:         chatModel,
		Middlewares:   []adk.AgentMiddleware{fsMiddleware},
		MaxIterations: maxIterations,
	})
	if err != nil {
		return "", errors.Errorf("create agent: %w", err)
	}

	runner := adk.NewRunner(ctx, adk.RunnerConfig{
		Agent: agent,
	})
	iter := runner.Query(ctx, userMessage(question))

	var result strings.Builder
	for {
		event, ok := iter.Next()
		if !ok {
			break
		}
		if event.Err != nil {
			return "", errors.Errorf("agent error: %w", event.Err)
		}
		msg, _, err := adk.GetMessage(event)
		if err != nil {
			continue
		}
		if msg != nil && msg.Role == schema.Assistant && msg.Content != "" {
			result.WriteString(msg.Content)
		}
	}

	return result.String(), nil
}

func userMessage(question string) string {
	if question == "" {
		return "Explain the cluster failures recorded in the workspace."
	}
	return "Explain the cluster failures recorded in the workspace. The operator's question: " + question
}

// newHTTPClient returns the client used for OpenRouter calls: traced with
// OpenTelemetry, and with tool messages patched before they leave.
func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: otelhttp.NewTransport(&fixupRoundTripper{base: http.DefaultTransport}),
	}
}

// fixupRoundTripper patches outgoing API requests to work around eino bugs.
type fixupRoundTripper struct {
	base http.RoundTripper
}

func (rt *fixupRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	// eino omits "content" when a tool returns nothing (e.g. grep with no
	// matches), which some providers reject.
	if req.Body != nil && req.Method == http.MethodPost {
		bodyBytes, err := io.ReadAll(req.Body)
		_ = req.Body.Close()
		if err != nil {
			return nil, errors.Errorf("read request body: %w", err)
		}
		bodyBytes = fixToolMessages(bodyBytes)
		req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		req.ContentLength = int64(len(bodyBytes))
	}
	return rt.base.RoundTrip(req)
}

func fixToolMessages(body []byte) []byte {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return body
	}
	messagesRaw, ok := payload["messages"]
	if !ok {
		return body
	}
	var messages []map[string]any
	if err := json.Unmarshal(messagesRaw, &messages); err != nil {
		return body
	}

	changed := false
	for _, msg := range messages {
		if msg["role"] != "tool" {
			continue
		}
		if _, hasContent := msg["content"]; !hasContent {
			msg["content"] = ""
			changed = true
		}
	}
	if !changed {
		return body
	}

	fixedMessages, err := json.Marshal(messages)
	if err != nil {
		return body
	}
	payload["messages"] = fixedMessages
	result, err := json.Marshal(payload)
	if err != nil {
		return body
	}
	return result
}

// openRouterModelsURL is queried by preflightCheck.
var openRouterModelsURL = "https://openrouter.ai/api/v1/models"

// preflightCheck does a quick API call to verify the key works before the
// agent starts.
func preflightCheck(ctx context.Context, cfg Config) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, openRouterModelsURL, nil)
	if err != nil {
		return errors.Errorf("preflight: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)

	resp, err := newHTTPClient().Do(req)
	if err != nil {
		return errors.Errorf("preflight: cannot reach OpenRouter: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return errors.Errorf("API error (HTTP %d) from OpenRouter: %s", resp.StatusCode, string(body))
	}
	return nil
}
