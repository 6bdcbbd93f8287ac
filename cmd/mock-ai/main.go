// Package main implements a stand-in AI cost reviewer for offline runs and
// e2e tests. It serves OpenAI-compatible /v1/chat/completions responses so
// semaudit can point an "ollama" or "openai" endpoint at it.
//
// Usage:
//
//	mock-ai -port 11434 -tolerance 0.3 [-fixtures dir] [-rate-limit-every N]
//
// Without a fixture for the requested model, the server reads the modelled and
// reference unit costs from the prompt and answers with a judgment: the cost is
// consistent when it deviates from the reference by at most the tolerance.
// Prompts without both costs get a prose reply that is not JSON.
//
// Fixture files are named by model (e.g. "mock-reviewer.json" maps to model
// "mock-reviewer") and returned verbatim as the assistant message. Numbered
// files ("mock-reviewer.1.json", "mock-reviewer.2.json") are served in order,
// then the base file repeats.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// --- OpenAI-compatible types ---

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// judgment is the reply shape the cost plausibility rule expects.
type judgment struct {
	IsConsistent  bool     `json:"is_consistent"`
	Justification string   `json:"justification"`
	SuggestedCost *float64 `json:"suggested_cost"`
}

// --- Server ---

// capturedRequest stores the prompt of an incoming request for test verification.
type capturedRequest struct {
	Model     string `json:"model"`
	Prompt    string `json:"prompt"`
	CallIndex int    `json:"call_index"` // 1-indexed per-model call number
	Status    int    `json:"status"`
	Timestamp int64  `json:"timestamp"`
}

type server struct {
	fixtures       map[string][]string // model name → ordered fixture contents
	tolerance      float64
	rateLimitEvery int64
	logger         *slog.Logger

	calls      atomic.Int64 // total calls served, rate-limited ones included
	rateLimits atomic.Int64

	mu         sync.Mutex
	modelCalls map[string]int
	requests   []capturedRequest
}

func newServer(fixtures map[string][]string, tolerance float64, rateLimitEvery int, logger *slog.Logger) *server {
	if fixtures == nil {
		fixtures = map[string][]string{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &server{
		fixtures:       fixtures,
		tolerance:      tolerance,
		rateLimitEvery: int64(rateLimitEvery),
		logger:         logger,
		modelCalls:     make(map[string]int),
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/v1/chat/completions", s.handleChatCompletions)
	mux.HandleFunc("/v1/models", s.handleModels)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/requests", s.handleRequests)
	return mux
}

func main() {
	fixtureDir := flag.String("fixtures", "", "directory containing fixture response files (optional)")
	port := flag.Int("port", 11434, "port to listen on")
	tolerance := flag.Float64("tolerance", 0.3, "relative deviation from the reference cost judged consistent")
	rateLimitEvery := flag.Int("rate-limit-every", 0, "answer every Nth call with 429 (0 disables)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	// Allow env var override
	if envDir := os.Getenv("MOCK_AI_FIXTURES"); envDir != "" && *fixtureDir == "" {
		*fixtureDir = envDir
	}

	var fixtures map[string][]string
	if *fixtureDir != "" {
		var err error
		fixtures, err = loadFixtures(*fixtureDir)
		if err != nil {
			logger.Error("Failed to load fixtures", "dir", *fixtureDir, "error", err)
			os.Exit(1)
		}
		for model, seq := range fixtures {
			logger.Info("Fixture loaded", "model", model, "responses", len(seq))
		}
	}

	s := newServer(fixtures, *tolerance, *rateLimitEvery, logger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", *port),
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Info("Mock AI server listening", "addr", srv.Addr, "tolerance", *tolerance)
	if err := srv.ListenAndServe(); err != nil {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	callNum := s.calls.Add(1)
	prompt := lastUserMessage(req.Messages)

	if s.rateLimitEvery > 0 && callNum%s.rateLimitEvery == 0 {
		s.rateLimits.Add(1)
		s.capture(req.Model, prompt, http.StatusTooManyRequests)
		s.logger.Info("Rate limiting call", "call", callNum, "model", req.Model)
		http.Error(w, `{"error":{"message":"rate limit exceeded"}}`, http.StatusTooManyRequests)
		return
	}

	callIndex := s.capture(req.Model, prompt, http.StatusOK)

	content, source := s.reply(req.Model, prompt, callIndex)
	s.logger.Debug("Answering call",
		"call", callNum,
		"model", req.Model,
		"call_index", callIndex,
		"source", source)

	resp := chatResponse{
		ID:      fmt.Sprintf("mock-%d", time.Now().UnixNano()),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []chatChoice{
			{
				Index: 0,
				Message: chatMessage{
					Role:    "assistant",
					Content: content,
				},
				FinishReason: "stop",
			},
		},
		Usage: chatUsage{
			PromptTokens:     len(prompt) / 4, // rough estimate
			CompletionTokens: len(content) / 4,
			TotalTokens:      (len(prompt) + len(content)) / 4,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// reply picks the fixture for the call, or judges the prompt when the model
// has none.
func (s *server) reply(model, prompt string, callIndex int) (string, string) {
	seq, ok := s.fixtures[model]
	if !ok {
		seq, ok = s.fixtures[strings.TrimPrefix(model, "mock-")]
	}
	if ok {
		if callIndex <= len(seq) {
			return seq[callIndex-1], "fixture"
		}
		return seq[len(seq)-1], "fixture"
	}
	return judge(prompt, s.tolerance), "judge"
}

// capture records a request and returns its 1-indexed per-model call number.
func (s *server) capture(model, prompt string, status int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modelCalls[model]++
	idx := s.modelCalls[model]
	s.requests = append(s.requests, capturedRequest{
		Model:     model,
		Prompt:    prompt,
		CallIndex: idx,
		Status:    status,
		Timestamp: time.Now().UnixMilli(),
	})
	return idx
}

func lastUserMessage(msgs []chatMessage) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "user" {
			return msgs[i].Content
		}
	}
	return ""
}

var (
	modelledCostRe  = regexp.MustCompile(`(?mi)^Modelled unit cost:\s*([0-9]+(?:\.[0-9]+)?)`)
	referenceCostRe = regexp.MustCompile(`(?mi)^Reference unit cost[^:\n]*:\s*([0-9]+(?:\.[0-9]+)?)`)
)

// judge compares the modelled cost in the prompt against the reference cost.
func judge(prompt string, tolerance float64) string {
	cost, ok := promptNumber(modelledCostRe, prompt)
	if !ok {
		return "I could not find a modelled cost in the request."
	}
	reference, ok := promptNumber(referenceCostRe, prompt)
	if !ok || reference <= 0 {
		return "I could not find a usable reference cost in the request."
	}

	deviation := (cost - reference) / reference
	j := judgment{IsConsistent: math.Abs(deviation) <= tolerance}
	switch {
	case j.IsConsistent:
		j.Justification = fmt.Sprintf("The modelled cost is within %.0f%% of the reference.", tolerance*100)
	case deviation < 0:
		j.Justification = fmt.Sprintf("The modelled cost is %.0f%% below the reference.", -deviation*100)
	default:
		j.Justification = fmt.Sprintf("The modelled cost is %.0f%% above the reference.", deviation*100)
	}
	if !j.IsConsistent {
		suggested := reference
		j.SuggestedCost = &suggested
	}

	data, _ := json.Marshal(j)
	return string(data)
}

func promptNumber(re *regexp.Regexp, prompt string) (float64, bool) {
	m := re.FindStringSubmatch(prompt)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// handleModels returns the list of fixture models (OpenAI-compatible).
func (s *server) handleModels(w http.ResponseWriter, _ *http.Request) {
	type modelEntry struct {
		ID      string `json:"id"`
		Object  string `json:"object"`
		OwnedBy string `json:"owned_by"`
	}
	models := []modelEntry{{ID: "mock-judge", Object: "model", OwnedBy: "mock-ai"}}
	names := make([]string, 0, len(s.fixtures))
	for name := range s.fixtures {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		models = append(models, modelEntry{ID: name, Object: "model", OwnedBy: "mock-ai"})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"object": "list",
		"data":   models,
	})
}

// handleStats returns call counts for test assertions.
func (s *server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	callsByModel := make(map[string]int, len(s.modelCalls))
	for model, n := range s.modelCalls {
		callsByModel[model] = n
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"total_calls":    s.calls.Load(),
		"rate_limited":   s.rateLimits.Load(),
		"calls_by_model": callsByModel,
	})
}

// handleRequests returns captured prompts, optionally filtered by ?model=.
func (s *server) handleRequests(w http.ResponseWriter, r *http.Request) {
	modelFilter := r.URL.Query().Get("model")

	s.mu.Lock()
	result := make([]capturedRequest, 0, len(s.requests))
	for _, req := range s.requests {
		if modelFilter != "" && req.Model != modelFilter {
			continue
		}
		result = append(result, req)
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"requests": result,
	})
}

// numberedFileRe matches files like "mock-reviewer.1.json".
var numberedFileRe = regexp.MustCompile(`^(.+)\.(\d+)\.json$`)

// loadFixtures reads JSON files from dir and returns a map of model→content
// sequence: numbered files in numeric order, then the base file.
func loadFixtures(dir string) (map[string][]string, error) {
	baseFiles := make(map[string]string)
	numberedFiles := make(map[string]map[int]string)

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(info.Name(), ".json") {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		if !json.Valid(data) {
			return fmt.Errorf("invalid JSON in %s", path)
		}
		content := string(data)

		if matches := numberedFileRe.FindStringSubmatch(info.Name()); matches != nil {
			model := matches[1]
			index, _ := strconv.Atoi(matches[2])
			if numberedFiles[model] == nil {
				numberedFiles[model] = make(map[int]string)
			}
			numberedFiles[model][index] = content
			return nil
		}

		baseFiles[strings.TrimSuffix(info.Name(), ".json")] = content
		return nil
	})
	if err != nil {
		return nil, err
	}

	fixtures := make(map[string][]string)
	for model, numbered := range numberedFiles {
		indices := make([]int, 0, len(numbered))
		for idx := range numbered {
			indices = append(indices, idx)
		}
		sort.Ints(indices)
		for _, idx := range indices {
			fixtures[model] = append(fixtures[model], numbered[idx])
		}
	}
	for model, base := range baseFiles {
		fixtures[model] = append(fixtures[model], base)
	}

	if len(fixtures) == 0 {
		return nil, fmt.Errorf("no fixture files found in %s", dir)
	}
	return fixtures, nil
}
