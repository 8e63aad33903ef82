package stream

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/intervyn/intervyn/internal/dialog"
	"github.com/intervyn/intervyn/internal/interview"
	"github.com/intervyn/intervyn/internal/llm"
	"github.com/intervyn/intervyn/internal/memory"
	"github.com/intervyn/intervyn/internal/observability"
)

// Error codes reported to clients.
const (
	CodeInterviewNotFound = "interview_not_found"
	CodeTokenInvalid      = "token_invalid"
	CodeTokenExpired      = "token_expired"
	CodePersistFailed     = "persist_failed"
	CodeStreamInterrupted = "stream_interrupted"
)

// TurnRequest is one candidate answer submitted for streaming delivery of
// the next question.
type TurnRequest struct {
	InterviewID string
	Token       string
	UserText    string
}

// QuestionStreamer generates the next question, pushing text fragments as
// they arrive. *interview.Orchestrator satisfies it.
type QuestionStreamer interface {
	StreamNextQuestion(ctx context.Context, interviewID string, history []dialog.Turn, dcfg dialog.Config, onDelta llm.DeltaHandler) (interview.Result, error)
}

// Engine drives one turn end to end: validate access, persist the answer,
// stream the generated question, persist the final text. The user's answer
// is durable before the first byte of generation leaves the server, and the
// assistant's text is persisted even when the client disconnects mid-stream.
type Engine struct {
	directory    interview.Directory
	store        interview.Store
	orchestrator QuestionStreamer
	memory       *memory.Store
	enricher     *memory.Enricher
	metrics      *observability.Metrics
	window       *observability.StageWindow
	logger       *zap.Logger
}

func NewEngine(
	directory interview.Directory,
	store interview.Store,
	orchestrator QuestionStreamer,
	mem *memory.Store,
	enricher *memory.Enricher,
	metrics *observability.Metrics,
	window *observability.StageWindow,
	logger *zap.Logger,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		directory:    directory,
		store:        store,
		orchestrator: orchestrator,
		memory:       mem,
		enricher:     enricher,
		metrics:      metrics,
		window:       window,
		logger:       logger,
	}
}

// Run processes one turn. Validation failures emit a single error event and
// return before anything is persisted. After the ready event the engine
// always finalizes: exactly one done event is attempted, and the assistant
// text accumulated so far is persisted regardless of client state.
func (e *Engine) Run(ctx context.Context, req TurnRequest, sink Sink) error {
	start := time.Now()

	iv, err := e.validate(ctx, req, sink)
	if err != nil {
		return err
	}

	// The answer is durable before generation starts. A failure here aborts
	// the turn; the client may safely resubmit the same text.
	if _, err := e.store.PersistUserMessage(ctx, req.InterviewID, req.UserText); err != nil {
		e.logger.Error("persist user message failed",
			zap.String("interview_id", req.InterviewID),
			zap.Error(err))
		_ = sink.Send(EventError, ErrorData{Code: CodePersistFailed})
		return err
	}
	e.countPersisted(interview.RoleUser)
	e.window.ObserveDuration(observability.StageUserPersisted, time.Since(start))
	e.rememberTurn(ctx, req.InterviewID, memory.TurnEntry{Role: interview.RoleUser, Text: req.UserText})

	history, err := e.loadHistory(ctx, req.InterviewID)
	if err != nil {
		_ = sink.Send(EventError, ErrorData{Code: CodePersistFailed})
		return err
	}

	if e.metrics != nil {
		e.metrics.ActiveStreams.Inc()
		defer e.metrics.ActiveStreams.Dec()
	}
	if err := sink.Send(EventReady, ReadyData{InterviewID: req.InterviewID, TSMs: time.Now().UnixMilli()}); err != nil {
		// Client left before generation started; nothing to finalize yet.
		e.window.ObserveIndicator("client_disconnect")
		return err
	}
	e.countEvent("ready")
	e.window.ObserveDuration(observability.StageStreamReady, time.Since(start))

	var (
		firstToken   time.Time
		disconnected bool
	)
	onDelta := func(text string) error {
		if firstToken.IsZero() {
			firstToken = time.Now()
			if e.metrics != nil {
				e.metrics.ObserveFirstTokenLatency(firstToken.Sub(start))
			}
			e.window.ObserveDuration(observability.StageFirstToken, firstToken.Sub(start))
		}
		e.countEvent("delta")
		if err := sink.Send(EventDelta, DeltaData{Text: text}); err != nil {
			disconnected = true
			return err
		}
		return nil
	}

	result, streamErr := e.orchestrator.StreamNextQuestion(ctx, req.InterviewID, history, iv.Dialog, onDelta)
	if disconnected {
		e.window.ObserveIndicator("client_disconnect")
	}

	e.finalize(ctx, req.InterviewID, result, streamErr, sink)
	e.window.ObserveDuration(observability.StageTurnTotal, time.Since(start))
	return streamErr
}

func (e *Engine) validate(ctx context.Context, req TurnRequest, sink Sink) (*interview.Interview, error) {
	iv, err := e.directory.GetInterview(ctx, req.InterviewID)
	if err != nil {
		code := CodeInterviewNotFound
		if !errors.Is(err, interview.ErrNotFound) {
			e.logger.Error("interview lookup failed",
				zap.String("interview_id", req.InterviewID),
				zap.Error(err))
		}
		_ = sink.Send(EventError, ErrorData{Code: code})
		return nil, err
	}

	if err := e.directory.ValidateCandidateToken(ctx, req.InterviewID, req.Token); err != nil {
		code := CodeTokenInvalid
		if errors.Is(err, interview.ErrTokenExpired) {
			code = CodeTokenExpired
		}
		_ = sink.Send(EventError, ErrorData{Code: code})
		return nil, err
	}
	return iv, nil
}

// finalize persists the accumulated question and closes the stream. It runs
// on a context detached from the client connection so a disconnect cannot
// abort the write.
func (e *Engine) finalize(ctx context.Context, interviewID string, result interview.Result, streamErr error, sink Sink) {
	finalizeStart := time.Now()
	detached := context.WithoutCancel(ctx)

	question := strings.TrimSpace(result.Question)
	if question != "" {
		if _, err := e.store.PersistAssistantMessage(detached, interviewID, question); err != nil {
			e.logger.Error("persist assistant message failed",
				zap.String("interview_id", interviewID),
				zap.Error(err))
		} else {
			e.countPersisted(interview.RoleAssistant)
			e.rememberTurn(detached, interviewID, memory.TurnEntry{Role: interview.RoleAssistant, Text: question})
		}
	}

	if streamErr != nil {
		e.countEvent("error")
		_ = sink.Send(EventError, ErrorData{Code: CodeStreamInterrupted, Detail: streamErr.Error()})
	}

	e.countEvent("done")
	_ = sink.Send(EventDone, DoneData{
		Question: question,
		Finished: result.Done,
		Length:   len(question),
	})
	e.window.ObserveDuration(observability.StageFinalized, time.Since(finalizeStart))
}

func (e *Engine) loadHistory(ctx context.Context, interviewID string) ([]dialog.Turn, error) {
	msgs, err := e.store.ListMessages(ctx, interviewID)
	if err != nil {
		return nil, err
	}
	turns := make([]dialog.Turn, 0, len(msgs))
	for _, m := range msgs {
		turns = append(turns, dialog.Turn{Role: m.Role, Text: m.Content})
	}
	return turns, nil
}

// rememberTurn keeps session memory in step with the transcript. Memory is
// advisory; failures are logged, never surfaced to the client.
func (e *Engine) rememberTurn(ctx context.Context, interviewID string, entry memory.TurnEntry) {
	if e.memory == nil {
		return
	}
	if err := e.memory.RecordTurn(ctx, interviewID, entry.Role, entry.Text); err != nil {
		e.logger.Warn("record turn in session memory failed",
			zap.String("interview_id", interviewID),
			zap.Error(err))
		return
	}
	if e.enricher == nil {
		return
	}
	if err := e.enricher.Enrich(ctx, interviewID, e.memory.Snapshot(ctx, interviewID).LastTurns); err != nil {
		e.logger.Warn("session memory enrichment failed",
			zap.String("interview_id", interviewID),
			zap.Error(err))
	}
}

func (e *Engine) countEvent(event string) {
	if e.metrics != nil {
		e.metrics.StreamEvents.WithLabelValues(event).Inc()
	}
}

func (e *Engine) countPersisted(role string) {
	if e.metrics != nil {
		e.metrics.MessagesPersisted.WithLabelValues(role).Inc()
	}
}
