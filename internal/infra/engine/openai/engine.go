package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	domain "github.com/bryanwahyu/essay-coach-gateway/internal/domain/grading"
)

const (
	maxTokens    = 2048
	defaultModel = "gpt-4o-mini"

	runTimeout = 5 * time.Minute
	keepRuns   = 4096
	keepFor    = time.Hour
)

// ErrQuotaExceeded indicates the AI provider returned a quota/limit error (HTTP 429 or similar).
var ErrQuotaExceeded = errors.New("ai quota exceeded")

// ChatCompleter is the part of *openai.Client the engine needs.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type runState struct {
	status    domain.EngineStatus
	text      string
	errMsg    string
	startedAt time.Time
	elapsed   time.Duration
	usage     map[string]int64
}

// Engine grades essays with a chat completion model. It exposes the same
// asynchronous submit/status contract as the workflow backend: Submit starts
// the completion in the background and Status reports on it.
type Engine struct {
	client ChatCompleter
	model  string
	log    *logrus.Entry

	mu   sync.Mutex
	runs *expirable.LRU[string, *runState]

	base context.Context
	stop context.CancelFunc
}

func NewEngine(apiKey, model string, log *logrus.Entry) *Engine {
	return NewEngineWithClient(openai.NewClient(apiKey), model, log)
}

func NewEngineWithClient(client ChatCompleter, model string, log *logrus.Entry) *Engine {
	if model == "" {
		model = defaultModel
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	base, stop := context.WithCancel(context.Background())
	return &Engine{
		client: client,
		model:  model,
		log:    log.WithField("engine", "openai"),
		runs:   expirable.NewLRU[string, *runState](keepRuns, nil, keepFor),
		base:   base,
		stop:   stop,
	}
}

// Submit implementasi Engine.Submit
func (e *Engine) Submit(ctx context.Context, req domain.SubmitRequest) (domain.SubmitResponse, error) {
	if err := ctx.Err(); err != nil {
		return domain.SubmitResponse{}, err
	}
	if e.base.Err() != nil {
		return domain.SubmitResponse{}, errors.New("openai engine is closed")
	}
	id := uuid.New().String()
	e.mu.Lock()
	e.runs.Add(id, &runState{status: domain.EngineRunning, startedAt: time.Now()})
	e.mu.Unlock()

	go e.execute(id, req)

	inputs, _ := json.Marshal(req)
	return domain.SubmitResponse{
		WorkflowRunID: id,
		TaskID:        id,
		Status:        string(domain.EngineRunning),
		Inputs:        inputs,
		ResponseMode:  req.ResponseMode,
	}, nil
}

// Status implementasi Engine.Status
func (e *Engine) Status(ctx context.Context, id domain.RunID) (domain.StatusResponse, error) {
	if err := ctx.Err(); err != nil {
		return domain.StatusResponse{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.runs.Get(string(id))
	if !ok {
		return domain.StatusResponse{}, fmt.Errorf("%w: %s", domain.ErrRunNotFound, id)
	}

	resp := domain.StatusResponse{
		WorkflowRunID: string(id),
		TaskID:        string(id),
		Status:        st.status,
		ErrorMessage:  st.errMsg,
		TokenUsage:    st.usage,
	}
	if st.status != domain.EngineRunning {
		secs := st.elapsed.Seconds()
		resp.ElapsedTimeSeconds = &secs
	}
	if st.status == domain.EngineSucceeded {
		b, err := json.Marshal(map[string]string{"text": st.text})
		if err != nil {
			return domain.StatusResponse{}, err
		}
		resp.Outputs = b
	}
	return resp, nil
}

// Close stops in-flight completions.
func (e *Engine) Close() {
	e.stop()
}

func (e *Engine) execute(id string, req domain.SubmitRequest) {
	ctx, cancel := context.WithTimeout(e.base, runTimeout)
	defer cancel()

	text, usage, err := e.complete(ctx, req)

	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.runs.Get(id)
	if !ok {
		return
	}
	st.elapsed = time.Since(st.startedAt)
	st.usage = usage
	if err != nil {
		st.status = domain.EngineFailed
		st.errMsg = err.Error()
		e.log.WithField("run_id", id).WithError(err).Warn("chat completion failed")
		return
	}
	st.status = domain.EngineSucceeded
	st.text = text
}

func (e *Engine) complete(ctx context.Context, req domain.SubmitRequest) (string, map[string]int64, error) {
	creq := openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt(req)},
		},
	}
	// For reasoning models (o1/o3/o4/gpt-5*) use MaxCompletionTokens instead of MaxTokens
	if isReasoningModel(e.model) {
		creq.MaxCompletionTokens = maxTokens
	} else {
		creq.MaxTokens = maxTokens
	}

	resp, err := e.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return "", nil, ErrQuotaExceeded
		}
		return "", nil, fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil, errors.New("chat completion returned no choices")
	}
	usage := map[string]int64{
		"prompt_tokens":     int64(resp.Usage.PromptTokens),
		"completion_tokens": int64(resp.Usage.CompletionTokens),
		"total_tokens":      int64(resp.Usage.TotalTokens),
	}
	return resp.Choices[0].Message.Content, usage, nil
}

func isReasoningModel(model string) bool {
	for _, p := range []string{"o1", "o3", "o4", "gpt-5"} {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
}
