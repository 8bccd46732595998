// Package judge0 implements the code-sandbox gateway over a Judge0-compatible
// HTTP API using submit-and-poll.
package judge0

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fairyhunter13/ai-assessment-engine/internal/adapter/observability"
	"github.com/fairyhunter13/ai-assessment-engine/internal/config"
	"github.com/fairyhunter13/ai-assessment-engine/internal/domain"
)

// TestCaseSeparator joins batched test-case inputs into one submission and
// splits the combined stdout back into per-case outputs.
const TestCaseSeparator = "---TEST_CASE_SEPARATOR---"

// maxBatchSize bounds test cases per submission.
const maxBatchSize = 5

// Client talks to a Judge0-compatible sandbox.
type Client struct {
	baseURL      string
	apiKey       string
	hc           *http.Client
	pollInterval time.Duration
	maxPolls     int
}

// New constructs a sandbox client from configuration.
func New(cfg config.Config) *Client {
	interval := cfg.SandboxPollInterval
	if interval <= 0 {
		interval = time.Second
	}
	polls := cfg.SandboxMaxPolls
	if polls <= 0 {
		polls = 10
	}
	return &Client{
		baseURL:      strings.TrimSuffix(cfg.SandboxBaseURL, "/"),
		apiKey:       cfg.SandboxAPIKey,
		hc:           &http.Client{Timeout: 15 * time.Second},
		pollInterval: interval,
		maxPolls:     polls,
	}
}

type submission struct {
	SourceCode   string  `json:"source_code"`
	LanguageID   int     `json:"language_id"`
	Stdin        string  `json:"stdin,omitempty"`
	CPUTimeLimit float64 `json:"cpu_time_limit,omitempty"`
	MemoryLimit  int     `json:"memory_limit,omitempty"`
}

type submissionStatus struct {
	Token  string `json:"token"`
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
	Time   string `json:"time"`
	Memory int    `json:"memory"`
	Status struct {
		ID          int    `json:"id"`
		Description string `json:"description"`
	} `json:"status"`
	CompileOutput string `json:"compile_output"`
	Message       string `json:"message"`
}

// Judge0 status ids: 1 in queue, 2 processing; 3 (accepted) and above are
// terminal.
const (
	statusInQueue    = 1
	statusProcessing = 2
)

// Execute submits source and polls until a terminal status or the poll budget
// runs out (ErrSandboxTimeout).
func (c *Client) Execute(ctx domain.Context, source string, languageID int, stdin string, limits domain.SandboxLimits) (domain.SandboxRun, error) {
	start := time.Now()
	token, err := c.submit(ctx, submission{
		SourceCode:   source,
		LanguageID:   languageID,
		Stdin:        stdin,
		CPUTimeLimit: limits.CPUTimeSec,
		MemoryLimit:  limits.MemoryKB,
	})
	if err != nil {
		observability.SandboxSubmissionsTotal.WithLabelValues("submit_error").Inc()
		return domain.SandboxRun{}, err
	}
	for i := 0; i < c.maxPolls; i++ {
		select {
		case <-ctx.Done():
			return domain.SandboxRun{}, fmt.Errorf("op=sandbox.execute: %w: %w", ctx.Err(), domain.ErrSandboxTimeout)
		case <-time.After(c.pollInterval):
		}
		st, err := c.poll(ctx, token)
		if err != nil {
			observability.SandboxSubmissionsTotal.WithLabelValues("poll_error").Inc()
			return domain.SandboxRun{}, err
		}
		if st.Status.ID == statusInQueue || st.Status.ID == statusProcessing {
			continue
		}
		observability.SandboxSubmissionsTotal.WithLabelValues("done").Inc()
		observability.SandboxPollDuration.Observe(time.Since(start).Seconds())
		stderr := st.Stderr
		if stderr == "" && st.CompileOutput != "" {
			stderr = st.CompileOutput
		}
		var timeSec float64
		_, _ = fmt.Sscanf(st.Time, "%f", &timeSec)
		return domain.SandboxRun{
			Stdout:   st.Stdout,
			Stderr:   stderr,
			Status:   st.Status.Description,
			TimeSec:  timeSec,
			MemoryKB: st.Memory,
		}, nil
	}
	observability.SandboxSubmissionsTotal.WithLabelValues("timeout").Inc()
	return domain.SandboxRun{}, fmt.Errorf("op=sandbox.execute: %d polls exhausted: %w", c.maxPolls, domain.ErrSandboxTimeout)
}

// RunTestCases batches up to 5 cases per submission, pairing split outputs to
// inputs by index. A failing batch produces per-test error records without
// aborting remaining batches.
func (c *Client) RunTestCases(ctx domain.Context, source string, languageID int, tests []domain.TestCase) ([]domain.TestCaseResult, error) {
	results := make([]domain.TestCaseResult, 0, len(tests))
	for begin := 0; begin < len(tests); begin += maxBatchSize {
		end := begin + maxBatchSize
		if end > len(tests) {
			end = len(tests)
		}
		batch := tests[begin:end]
		inputs := make([]string, len(batch))
		for i, tc := range batch {
			inputs[i] = tc.Input
		}
		stdin := strings.Join(inputs, "\n"+TestCaseSeparator+"\n")

		run, err := c.Execute(ctx, source, languageID, stdin, domain.SandboxLimits{})
		if err != nil {
			slog.Warn("sandbox batch failed", slog.Int("batch_start", begin), slog.Any("error", err))
			for _, tc := range batch {
				results = append(results, errorResult(tc, err.Error()))
			}
			continue
		}
		if run.Status != "Accepted" {
			msg := run.Status
			if run.Stderr != "" {
				msg = run.Stderr
			}
			for _, tc := range batch {
				results = append(results, errorResult(tc, msg))
			}
			continue
		}
		outputs := strings.Split(run.Stdout, TestCaseSeparator)
		for i, tc := range batch {
			var actual string
			if i < len(outputs) {
				actual = outputs[i]
			}
			actualNorm := NormalizeOutput(actual)
			expectedNorm := NormalizeOutput(tc.ExpectedOutput)
			results = append(results, domain.TestCaseResult{
				Input:          tc.Input,
				ExpectedOutput: tc.ExpectedOutput,
				ActualOutput:   actualNorm,
				Passed:         actualNorm == expectedNorm,
				Hidden:         tc.IsHidden,
				Weight:         tc.Weight,
			})
		}
	}
	return results, nil
}

func errorResult(tc domain.TestCase, msg string) domain.TestCaseResult {
	return domain.TestCaseResult{
		Input:          tc.Input,
		ExpectedOutput: tc.ExpectedOutput,
		Passed:         false,
		Hidden:         tc.IsHidden,
		Weight:         tc.Weight,
		Error:          msg,
	}
}

// NormalizeOutput converts CRLF to LF, trims trailing whitespace per line,
// and drops leading/trailing blank lines before comparison.
func NormalizeOutput(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " \t")
	}
	return strings.Trim(strings.Join(lines, "\n"), "\n")
}

// Languages fetches the judge's language catalog.
func (c *Client) Languages(ctx domain.Context) ([]domain.SandboxLanguage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/languages", nil)
	if err != nil {
		return nil, err
	}
	c.auth(req)
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("op=sandbox.languages: %v: %w", err, domain.ErrSandboxUnavailable)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("op=sandbox.languages: status %d: %w", resp.StatusCode, domain.ErrSandboxUnavailable)
	}
	var langs []domain.SandboxLanguage
	if err := json.NewDecoder(resp.Body).Decode(&langs); err != nil {
		return nil, fmt.Errorf("op=sandbox.languages: decode: %w", err)
	}
	return langs, nil
}

func (c *Client) submit(ctx domain.Context, sub submission) (string, error) {
	b, _ := json.Marshal(sub)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/submissions?base64_encoded=false&wait=false", bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	c.auth(req)
	resp, err := c.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("op=sandbox.submit: %v: %w", err, domain.ErrSandboxUnavailable)
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("op=sandbox.submit: status %d: %w", resp.StatusCode, domain.ErrSandboxUnavailable)
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &out); err != nil || out.Token == "" {
		return "", fmt.Errorf("op=sandbox.submit: no token in response: %w", domain.ErrSandboxUnavailable)
	}
	return out.Token, nil
}

func (c *Client) poll(ctx domain.Context, token string) (submissionStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/submissions/"+token+"?base64_encoded=false", nil)
	if err != nil {
		return submissionStatus{}, err
	}
	c.auth(req)
	resp, err := c.hc.Do(req)
	if err != nil {
		return submissionStatus{}, fmt.Errorf("op=sandbox.poll: %v: %w", err, domain.ErrSandboxUnavailable)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return submissionStatus{}, fmt.Errorf("op=sandbox.poll: status %d: %w", resp.StatusCode, domain.ErrSandboxUnavailable)
	}
	var st submissionStatus
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return submissionStatus{}, fmt.Errorf("op=sandbox.poll: decode: %w", err)
	}
	return st, nil
}

func (c *Client) auth(r *http.Request) {
	if c.apiKey != "" {
		r.Header.Set("X-Auth-Token", c.apiKey)
	}
}
