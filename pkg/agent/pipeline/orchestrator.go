// Package pipeline runs the Sense → Plan → Act orchestration: each phase
// streams a response from the generation service, and the Act phase hands
// validated actions to the executor under a fresh approval session.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"daw-agent-be/internal/pkg/logger"
	"daw-agent-be/pkg/agent"
	"daw-agent-be/pkg/agent/assembler"
	"daw-agent-be/pkg/agent/executor"
	"daw-agent-be/pkg/agent/ledger"
	"daw-agent-be/pkg/events"
	"daw-agent-be/pkg/llm"
	"daw-agent-be/pkg/memory"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const module = "PIPELINE"

const (
	senseImportance = 0.6
	planImportance  = 0.7
	actImportance   = 0.8
)

// Configuration errors, returned before any network call.
var (
	ErrNotInitialized       = errors.New("agent pipeline is not initialized")
	ErrGenerationInProgress = errors.New("generation already in progress")
	ErrModelNotSet          = errors.New("model is not set")
	ErrAPIKeyNotSet         = errors.New("API key is not set")
)

// Phase outcomes that abort the run without a transport failure.
var (
	ErrUnderstandingIncomplete = errors.New("context understanding incomplete")
	ErrEmptyPlan               = errors.New("plan contains no actions")
)

// TransportError wraps a stream failure or timeout in one phase.
type TransportError struct {
	Phase assembler.Phase
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s phase: %v", e.Phase, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

type State string

const (
	StateIdle        State = "idle"
	StateSensing     State = "sensing"
	StatePlanning    State = "planning"
	StateActing      State = "acting"
	StateCompleted   State = "completed"
	StateSenseFailed State = "senseFailed"
	StatePlanFailed  State = "planFailed"
)

type Config struct {
	Model        string
	APIKey       string
	PhaseTimeout time.Duration
	AutoApprove  bool
}

// Recorder stores phase transcripts as short-term memory.
type Recorder interface {
	AddToShortTermMemory(item memory.MemoryItem) memory.MemoryItem
}

// Request is one orchestration call.
type Request struct {
	Prompt  string
	Context agent.Context
	// Model and APIKey override the configured credentials when set.
	Model  string
	APIKey string
	// AutoApprove overrides Config.AutoApprove when set.
	AutoApprove *bool
	// OnChunk receives every raw text chunk as it arrives.
	OnChunk func(phase assembler.Phase, chunk string)
	// Prepare runs once the generating latch is held and its result
	// replaces Context. A request turned away as busy never calls it.
	Prepare func() agent.Context
}

type Status struct {
	State      State `json:"state"`
	Generating bool  `json:"isGenerating"`
}

type Option func(*Orchestrator)

func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

type Orchestrator struct {
	cfg       Config
	streamer  llm.Streamer
	assembler *assembler.Assembler
	ledger    *ledger.Ledger
	executor  *executor.Executor
	recorder  Recorder
	logger    logger.ILogger
	events    *events.Dispatcher
	tracer    trace.Tracer

	mu         sync.Mutex
	state      State
	generating bool
	runID      uint64
	cancel     context.CancelFunc
}

func New(
	cfg Config,
	streamer llm.Streamer,
	asm *assembler.Assembler,
	l *ledger.Ledger,
	exec *executor.Executor,
	log logger.ILogger,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		cfg:       cfg,
		streamer:  streamer,
		assembler: asm,
		ledger:    l,
		executor:  exec,
		logger:    log,
		events:    events.NewDispatcher(),
		tracer:    otel.Tracer("daw-agent-be/pipeline"),
		state:     StateIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) Events() *events.Dispatcher {
	return o.events
}

func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Status{State: o.state, Generating: o.generating}
}

// Cancel stops the in-flight run. The latch is cleared at once and the run's
// context is cancelled; changes already recorded stay in the ledger.
func (o *Orchestrator) Cancel() bool {
	o.mu.Lock()
	if !o.generating {
		o.mu.Unlock()
		return false
	}
	o.generating = false
	o.runID++
	o.state = StateIdle
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.mu.Unlock()

	o.logger.Info(module, "Generation cancelled", nil)
	o.events.Emit(events.New(events.GenerationCanceled, nil))
	return true
}

func (o *Orchestrator) checkConfig(req Request) (model, apiKey string, err error) {
	if o.streamer == nil || o.assembler == nil || o.ledger == nil || o.executor == nil {
		return "", "", ErrNotInitialized
	}
	model = firstNonEmpty(req.Model, o.cfg.Model)
	if model == "" {
		return "", "", ErrModelNotSet
	}
	apiKey = firstNonEmpty(req.APIKey, o.cfg.APIKey)
	if apiKey == "" && llm.RequiresAPIKey(o.streamer) {
		return "", "", ErrAPIKeyNotSet
	}
	return model, apiKey, nil
}

func (o *Orchestrator) acquire(ctx context.Context) (context.Context, uint64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.generating {
		return nil, 0, ErrGenerationInProgress
	}
	runCtx, cancel := context.WithCancel(ctx)
	o.generating = true
	o.runID++
	o.cancel = cancel
	o.state = StateSensing
	return runCtx, o.runID, nil
}

func (o *Orchestrator) release(id uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.runID != id {
		return
	}
	o.generating = false
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
}

// setState moves the machine only while run id is still the active run.
func (o *Orchestrator) setState(id uint64, s State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.runID == id {
		o.state = s
	}
}

// StreamAgentAction runs Sense, Plan and Act for one request. The returned
// result is always populated; err is non-nil when the run aborted.
func (o *Orchestrator) StreamAgentAction(ctx context.Context, req Request) (agent.Result, error) {
	model, apiKey, err := o.checkConfig(req)
	if err != nil {
		return failed(err), err
	}

	runCtx, id, err := o.acquire(ctx)
	if err != nil {
		return failed(err), err
	}
	defer o.release(id)

	if req.Prepare != nil {
		req.Context = req.Prepare()
	}
	r := &phaseRunner{o: o, req: req, model: model, apiKey: apiKey}
	o.logger.Info(module, "Starting three-phase run", map[string]interface{}{"prompt": truncateRunes(req.Prompt, 50)})
	o.events.Emit(events.New(events.StreamingStarted, map[string]interface{}{"prompt": req.Prompt}))

	// ═══════════════════════════════════════════════════════════════
	// PHASE 1: SENSE
	// ═══════════════════════════════════════════════════════════════
	o.logger.Debug(module, "[PHASE 1] Sensing context", nil)

	senseBlock, err := o.assembler.Assemble(runCtx, assembler.PhaseSense, req.Prompt, req.Context)
	if err != nil {
		return o.abort(id, StateSenseFailed, err)
	}
	senseText, err := r.stream(runCtx, assembler.PhaseSense, buildSensePrompt(req.Prompt, req.Context, senseBlock))
	if err != nil {
		return o.abort(id, StateSenseFailed, err)
	}

	understanding := EvaluateUnderstanding(senseText, req.Context)
	o.logger.Info(module, "[PHASE 1] Understanding evaluated", map[string]interface{}{
		"understood": understanding.Understood,
		"ratio":      understanding.Ratio,
		"reason":     understanding.Reason,
	})
	if !understanding.Understood {
		return o.abort(id, StateSenseFailed, ErrUnderstandingIncomplete)
	}
	o.remember(req.Prompt, senseText, assembler.PhaseSense, senseImportance, 0)
	o.events.Emit(events.New(events.SensePhaseDone, map[string]interface{}{
		"text":          FilterDisplayText(senseText),
		"understanding": understanding,
	}))

	// ═══════════════════════════════════════════════════════════════
	// PHASE 2: PLAN
	// ═══════════════════════════════════════════════════════════════
	o.setState(id, StatePlanning)
	o.logger.Debug(module, "[PHASE 2] Planning", nil)

	planBlock, err := o.assembler.Assemble(runCtx, assembler.PhasePlan, req.Prompt, req.Context)
	if err != nil {
		return o.abort(id, StatePlanFailed, err)
	}
	planText, err := r.stream(runCtx, assembler.PhasePlan, buildPlanPrompt(req.Prompt, req.Context, planBlock, senseText))
	if err != nil {
		return o.abort(id, StatePlanFailed, err)
	}

	plan, structured := ParsePlan(planText, req.Context)
	o.logger.Info(module, "[PHASE 2] Plan parsed", map[string]interface{}{
		"actions":    len(plan.Actions),
		"structured": structured,
	})
	if len(plan.Actions) == 0 {
		return o.abort(id, StatePlanFailed, ErrEmptyPlan)
	}
	o.remember(req.Prompt, planText, assembler.PhasePlan, planImportance, len(plan.Actions))
	o.events.Emit(events.New(events.PlanPhaseDone, map[string]interface{}{
		"text":    FilterDisplayText(planText),
		"actions": plan.Actions,
		"summary": plan.Summary,
	}))

	// ═══════════════════════════════════════════════════════════════
	// PHASE 3: ACT
	// ═══════════════════════════════════════════════════════════════
	o.setState(id, StateActing)
	o.logger.Debug(module, "[PHASE 3] Acting", nil)

	actBlock, err := o.assembler.Assemble(runCtx, assembler.PhaseAct, req.Prompt, req.Context)
	if err != nil {
		return o.abort(id, StateIdle, err)
	}
	actText, err := r.stream(runCtx, assembler.PhaseAct, buildActPrompt(req.Prompt, req.Context, actBlock, plan))
	if err != nil {
		return o.abort(id, StateIdle, err)
	}

	actPlan, _ := ParsePlan(actText, req.Context)
	valid, dropped := agent.ValidateActions(actPlan.Actions)
	if len(dropped) > 0 {
		o.logger.Warn(module, "[PHASE 3] Invalid actions dropped", map[string]interface{}{"count": len(dropped)})
	}

	sessionID := o.ledger.StartSession()
	outcomes := o.executor.Execute(runCtx, valid, req.Context)

	autoApprove := o.cfg.AutoApprove
	if req.AutoApprove != nil {
		autoApprove = *req.AutoApprove
	}
	if autoApprove {
		o.ledger.ApproveAll(context.WithoutCancel(runCtx))
	}

	o.remember(req.Prompt, actText, assembler.PhaseAct, actImportance, len(valid))
	o.events.Emit(events.New(events.ActPhaseDone, map[string]interface{}{
		"actions":  valid,
		"outcomes": outcomes,
	}))

	result := agent.Result{
		Actions:           nonNil(valid),
		Summary:           actPlan.Summary,
		NextSteps:         actPlan.NextSteps,
		Success:           true,
		HasPendingChanges: o.ledger.HasPendingChanges(),
		ApprovalSessionID: sessionID,
		Dropped:           dropped,
		Outcomes:          outcomes,
	}
	o.setState(id, StateCompleted)
	o.logger.Info(module, "[PHASE 3] Run completed", map[string]interface{}{
		"actions":   len(valid),
		"pending":   result.HasPendingChanges,
		"sessionId": sessionID,
	})
	o.events.Emit(events.New(events.StreamingCompleted, map[string]interface{}{"result": result}))
	return result, nil
}

func (o *Orchestrator) abort(id uint64, s State, err error) (agent.Result, error) {
	o.setState(id, s)
	o.logger.Error(module, "Run aborted", map[string]interface{}{
		"state": s,
		"error": err.Error(),
	})
	o.events.Emit(events.New(events.StreamingError, map[string]interface{}{
		"state": s,
		"error": err.Error(),
	}))
	return failed(err), err
}

func (o *Orchestrator) remember(prompt, response string, phase assembler.Phase, importance float64, actionCount int) {
	if o.recorder == nil {
		return
	}
	o.recorder.AddToShortTermMemory(memory.MemoryItem{
		Type:       memory.TypeConversation,
		Importance: importance,
		Content: memory.Content{
			UserMessage:       prompt,
			AssistantResponse: response,
			Phase:             string(phase),
			ActionCount:       actionCount,
		},
	})
}

// phaseRunner streams one phase at a time for a single run.
type phaseRunner struct {
	o      *Orchestrator
	req    Request
	model  string
	apiKey string
}

func (r *phaseRunner) stream(ctx context.Context, phase assembler.Phase, prompt string) (string, error) {
	ctx, span := r.o.tracer.Start(ctx, "agent."+string(phase))
	defer span.End()
	span.SetAttributes(
		attribute.String("agent.model", r.model),
		attribute.Int("agent.prompt_length", len(prompt)),
	)

	if timeout := r.o.cfg.PhaseTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	text, err := r.collect(ctx, phase, prompt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", &TransportError{Phase: phase, Err: err}
	}
	span.SetAttributes(attribute.Int("agent.response_length", len(text)))
	return text, nil
}

func (r *phaseRunner) collect(ctx context.Context, phase assembler.Phase, prompt string) (string, error) {
	stream, err := r.o.streamer.Stream(ctx, llm.Request{Prompt: prompt, Model: r.model, APIKey: r.apiKey})
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var sb strings.Builder
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return sb.String(), nil
		}
		if err != nil {
			return "", err
		}
		sb.WriteString(chunk)

		r.o.events.Emit(events.New(events.StreamingChunk, map[string]interface{}{
			"phase": string(phase),
			"chunk": chunk,
		}))
		if r.req.OnChunk != nil {
			r.req.OnChunk(phase, chunk)
		}
	}
}

func failed(err error) agent.Result {
	return agent.Result{Actions: []agent.Action{}, Success: false, Error: err.Error()}
}

func nonNil(actions []agent.Action) []agent.Action {
	if actions == nil {
		return []agent.Action{}
	}
	return actions
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
