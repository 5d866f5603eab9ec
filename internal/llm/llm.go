package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// Sentinel errors for the summarizer subprocess. Callers match with
// errors.Is; every failure is wrapped in a *ToolError carrying the tool name
// and captured stderr.
var (
	ErrToolMissing = errors.New("summarizer tool not found")
	ErrTimeout     = errors.New("summarizer timed out")
	ErrExecution   = errors.New("summarizer execution failed")
	ErrParse       = errors.New("summarizer output not parseable")
)

// maxStderr bounds how much captured stderr a ToolError carries.
const maxStderr = 512

// maxPromptContent bounds how much item content goes into the prompt.
const maxPromptContent = 4000

// ToolError describes a summarizer subprocess failure.
type ToolError struct {
	Tool   string // Provider name ("claude", "copilot")
	Stderr string // Captured stderr, truncated
	Err    error  // One of the sentinel errors, possibly wrapped
}

func (e *ToolError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s: %v: %s", e.Tool, e.Err, e.Stderr)
	}
	return fmt.Sprintf("%s: %v", e.Tool, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

// Request is one item to summarize.
type Request struct {
	Title   string
	URL     string
	Vendor  string
	Content string
}

// Analysis is the summarizer's structured verdict on one item.
type Analysis struct {
	Summary         string   `json:"summary"`
	Tags            []string `json:"tags"`
	IsPrimarySource bool     `json:"is_primary_source"`
	TechDomain      string   `json:"tech_domain"`
}

// Analyzer summarizes and tags one item. Implementations never retry; a
// failed analysis falls back to the caller's degraded path.
type Analyzer interface {
	// Name identifies the provider.
	Name() string

	// Available reports whether the backing tool can run at all. Cheap
	// after the first call.
	Available() bool

	// Analyze runs the tool on one item under the configured timeout.
	Analyze(ctx context.Context, req Request) (*Analysis, error)
}

// Provider describes one supported LLM CLI tool.
type Provider struct {
	Name   string
	Binary string
	Args   func(prompt string) []string
}

// providers is the table of supported CLI tools.
var providers = map[string]Provider{
	"claude": {
		Name:   "claude",
		Binary: "claude",
		Args:   func(prompt string) []string { return []string{"-p", prompt} },
	},
	"copilot": {
		Name:   "copilot",
		Binary: "copilot",
		Args:   func(prompt string) []string { return []string{"-p", prompt} },
	},
}

// LookupProvider returns the provider table entry for a name.
func LookupProvider(name string) (Provider, bool) {
	p, ok := providers[name]
	return p, ok
}

// ProviderNames lists the supported provider names.
func ProviderNames() []string {
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	return names
}

// CLIAnalyzer runs an LLM CLI tool as a subprocess, one invocation at a
// time, under a wall-clock timeout.
type CLIAnalyzer struct {
	provider Provider
	timeout  time.Duration

	mu sync.Mutex // subprocesses run strictly sequentially

	lookupOnce sync.Once
	binPath    string
	lookupErr  error
}

// NewAnalyzer creates an analyzer for a named provider from the table.
func NewAnalyzer(providerName string, timeout time.Duration) (*CLIAnalyzer, error) {
	p, ok := LookupProvider(providerName)
	if !ok {
		return nil, fmt.Errorf("unknown LLM provider %q (supported: %s)", providerName, strings.Join(ProviderNames(), ", "))
	}
	return NewCLIAnalyzer(p, timeout), nil
}

// NewCLIAnalyzer creates an analyzer for an explicit provider definition.
func NewCLIAnalyzer(p Provider, timeout time.Duration) *CLIAnalyzer {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &CLIAnalyzer{provider: p, timeout: timeout}
}

// Name identifies the provider.
func (a *CLIAnalyzer) Name() string { return a.provider.Name }

// Available probes PATH for the provider binary. The result is cached for
// the life of the analyzer.
func (a *CLIAnalyzer) Available() bool {
	a.lookup()
	return a.lookupErr == nil
}

func (a *CLIAnalyzer) lookup() {
	a.lookupOnce.Do(func() {
		a.binPath, a.lookupErr = exec.LookPath(a.provider.Binary)
	})
}

// Analyze builds the prompt, runs the tool and extracts the JSON verdict.
// There is exactly one attempt: any failure surfaces as a *ToolError and
// the caller takes its fallback path.
func (a *CLIAnalyzer) Analyze(ctx context.Context, req Request) (*Analysis, error) {
	a.lookup()
	if a.lookupErr != nil {
		return nil, &ToolError{Tool: a.provider.Name, Err: ErrToolMissing}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	runCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, a.binPath, a.provider.Args(buildPrompt(req))...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		return nil, &ToolError{Tool: a.provider.Name, Stderr: truncate(stderr.String()), Err: ErrTimeout}
	}
	if err != nil {
		return nil, &ToolError{
			Tool:   a.provider.Name,
			Stderr: truncate(stderr.String()),
			Err:    fmt.Errorf("%w: %v", ErrExecution, err),
		}
	}

	analysis, err := ExtractJSON(stdout.String())
	if err != nil {
		return nil, &ToolError{
			Tool:   a.provider.Name,
			Stderr: truncate(stderr.String()),
			Err:    fmt.Errorf("%w: %v", ErrParse, err),
		}
	}

	return analysis, nil
}

// buildPrompt renders the summarization prompt. The tool must answer with a
// single JSON object using exactly these keys; everything else on stdout is
// tolerated by the extractor.
func buildPrompt(req Request) string {
	content := req.Content
	if r := []rune(content); len(r) > maxPromptContent {
		content = string(r[:maxPromptContent])
	}

	var b strings.Builder
	b.WriteString("Analyze this technology announcement and respond with ONLY a JSON object, no other text.\n\n")
	b.WriteString("Required JSON keys:\n")
	b.WriteString(`{"summary": "2-3 sentence summary", "tags": ["lowercase", "tags"], "is_primary_source": true, "tech_domain": "short domain label"}`)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Title: %s\n", req.Title)
	if req.Vendor != "" {
		fmt.Fprintf(&b, "Vendor: %s\n", req.Vendor)
	}
	if req.URL != "" {
		fmt.Fprintf(&b, "URL: %s\n", req.URL)
	}
	fmt.Fprintf(&b, "Content:\n%s\n", content)
	return b.String()
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxStderr {
		return s[:maxStderr]
	}
	return s
}
