package interview

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/intervyn/intervyn/internal/dialog"
	"github.com/intervyn/intervyn/internal/llm"
	"github.com/intervyn/intervyn/internal/memory"
	"github.com/intervyn/intervyn/internal/safety"
)

// TerminationSentinel ends the interview when a model returns it as the
// entire trimmed response. Substring occurrences do not count.
const TerminationSentinel = "INTERVIEW_COMPLETE"

const historyWindow = 20

const systemPersona = "Sen deneyimli, nazik bir işe alım görüşmecisisin. " +
	"Adaya her seferinde tek bir soru sorarsın, kısa ve net konuşursun. " +
	"Görüşmeyi bitirmek gerektiğinde yalnızca " + TerminationSentinel + " yazarsın."

// Generator is the provider side of the orchestrator; *llm.Chain satisfies it.
type Generator interface {
	Generate(ctx context.Context, req llm.Request, preferred string) (llm.Response, error)
	GenerateStream(ctx context.Context, req llm.Request, preferred string, onDelta llm.DeltaHandler) (llm.Response, error)
}

// Result is the orchestrator's answer for one turn.
type Result struct {
	Question string `json:"question"`
	Done     bool   `json:"done"`
}

// Orchestrator decides what the interviewer says next. Two-tier fallback: the
// provider chain handles cross-provider failover internally, and a local
// deterministic generator absorbs total provider loss, so generation never
// fails for availability reasons.
type Orchestrator struct {
	generator  Generator
	memory     *memory.Store
	production bool
	logger     *zap.Logger
}

func NewOrchestrator(generator Generator, mem *memory.Store, production bool, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		generator:  generator,
		memory:     mem,
		production: production,
		logger:     logger,
	}
}

// GenerateNextQuestion produces the next interviewer question, or Done when
// the turn budget is exhausted or the model signals termination. The turn
// budget is enforced locally before any provider call and cannot be
// overridden by model output.
func (o *Orchestrator) GenerateNextQuestion(ctx context.Context, interviewID string, history []dialog.Turn, dcfg dialog.Config) Result {
	if asked := countAssistantTurns(history); dcfg.MaxQuestions > 0 && asked >= dcfg.MaxQuestions {
		return Result{Done: true}
	}

	resp, err := o.generator.Generate(ctx, o.buildRequest(ctx, interviewID, history), o.preferredProvider())
	if err != nil {
		o.logger.Warn("question generation fell back to local generator",
			zap.String("interview_id", interviewID),
			zap.Error(err))
		return Result{Question: o.localFallback(dcfg, history)}
	}
	return o.finishResult(resp.Content)
}

// StreamNextQuestion is the streaming variant used by the delivery engine.
// Deltas reach onDelta as they arrive; the returned result carries the full
// accumulated text. A mid-stream provider failure returns the partial
// accumulation along with the error so the caller can still persist it.
//
// Forwarded deltas are raw model text. The validated question in the result
// is canonical and is what gets persisted; leading deltas are withheld while
// they could still be the termination sentinel, so a terminating turn
// delivers no text at all.
func (o *Orchestrator) StreamNextQuestion(ctx context.Context, interviewID string, history []dialog.Turn, dcfg dialog.Config, onDelta llm.DeltaHandler) (Result, error) {
	if asked := countAssistantTurns(history); dcfg.MaxQuestions > 0 && asked >= dcfg.MaxQuestions {
		return Result{Done: true}, nil
	}

	gate := &sentinelGate{forward: onDelta}
	resp, err := o.generator.GenerateStream(ctx, o.buildRequest(ctx, interviewID, history), o.preferredProvider(), gate.emit)
	if err != nil {
		if strings.TrimSpace(resp.Content) != "" {
			// Best effort: the sink that broke the stream may be gone.
			_ = gate.flush()
			return Result{Question: resp.Content}, err
		}
		o.logger.Warn("streamed generation fell back to local generator",
			zap.String("interview_id", interviewID),
			zap.Error(err))
		q := o.localFallback(dcfg, history)
		if onDelta != nil {
			if sendErr := onDelta(q); sendErr != nil {
				return Result{Question: q}, sendErr
			}
		}
		return Result{Question: q}, nil
	}

	result := o.finishResult(resp.Content)
	if !result.Done {
		if flushErr := gate.flush(); flushErr != nil {
			return result, flushErr
		}
	}
	return result, nil
}

// sentinelGate withholds leading deltas while the accumulated text could
// still turn out to be the termination sentinel. Once the text diverges the
// held prefix is released and later deltas pass straight through.
type sentinelGate struct {
	forward llm.DeltaHandler
	held    strings.Builder
	open    bool
}

func (g *sentinelGate) emit(delta string) error {
	if g.open {
		return g.send(delta)
	}
	g.held.WriteString(delta)
	candidate := strings.ToLower(strings.TrimSpace(g.held.String()))
	if strings.HasPrefix(strings.ToLower(TerminationSentinel), candidate) {
		return nil
	}
	return g.flush()
}

func (g *sentinelGate) flush() error {
	g.open = true
	if g.held.Len() == 0 {
		return nil
	}
	held := g.held.String()
	g.held.Reset()
	return g.send(held)
}

func (g *sentinelGate) send(delta string) error {
	if g.forward == nil || delta == "" {
		return nil
	}
	return g.forward(delta)
}

func (o *Orchestrator) finishResult(raw string) Result {
	trimmed := strings.TrimSpace(raw)
	if strings.EqualFold(trimmed, TerminationSentinel) {
		return Result{Done: true}
	}
	_, safe := safety.ValidateAssistantQuestion(trimmed)
	return Result{Question: safe}
}

func (o *Orchestrator) buildRequest(ctx context.Context, interviewID string, history []dialog.Turn) llm.Request {
	messages := []llm.Message{{Role: llm.RoleSystem, Content: o.systemMessage(ctx, interviewID)}}

	window := history
	if len(window) > historyWindow {
		window = window[len(window)-historyWindow:]
	}
	for _, turn := range window {
		role := llm.RoleUser
		if turn.Role == dialog.RoleAssistant {
			role = llm.RoleAssistant
		}
		messages = append(messages, llm.Message{Role: role, Content: turn.Text})
	}

	return llm.Request{
		Messages:    messages,
		Temperature: 0.7,
		MaxTokens:   300,
	}
}

func (o *Orchestrator) systemMessage(ctx context.Context, interviewID string) string {
	var b strings.Builder
	b.WriteString(systemPersona)

	if o.memory == nil || interviewID == "" {
		return b.String()
	}

	snap := o.memory.Snapshot(ctx, interviewID)
	if snap.RollingSummary != "" {
		b.WriteString("\n\nGörüşme özeti:\n")
		b.WriteString(snap.RollingSummary)
	}
	if len(snap.Facts) > 0 {
		b.WriteString("\n\nNotlar:")
		for _, key := range []string{"mentioned_technologies", "last_question"} {
			if v, ok := snap.Facts[key]; ok && v != "" {
				fmt.Fprintf(&b, "\n- %s: %s", key, v)
			}
		}
	}
	return b.String()
}

func (o *Orchestrator) preferredProvider() string {
	// Paid provider is only preferred in production deployments.
	if o.production {
		return "openai"
	}
	return ""
}

// localFallback keeps the interview moving when every provider is down:
// degraded quality, not degraded availability. Interviews with a requirement
// configuration get the deterministic planner; the rest get keyword probes.
func (o *Orchestrator) localFallback(dcfg dialog.Config, history []dialog.Turn) string {
	if len(dcfg.Requirements) > 0 || strings.TrimSpace(dcfg.InitialQuestion) != "" {
		if r := dialog.NextQuestion(history, dcfg); !r.Done && strings.TrimSpace(r.Question) != "" {
			_, safe := safety.ValidateAssistantQuestion(r.Question)
			return safe
		}
	}

	probes := []string{
		"Son çalıştığınız projeden bahseder misiniz?",
		"Bu çalışmada hangi teknolojileri kullandınız?",
		"Karşılaştığınız en zor problemi nasıl çözdünüz?",
		"Ekip içinde nasıl bir rol üstlendiniz?",
		"Bu deneyimden neler öğrendiniz?",
	}

	if keywords := dialog.ExtractKeywords(lastUserAnswer(history)); len(keywords) > 0 {
		_, safe := safety.ValidateAssistantQuestion(
			fmt.Sprintf("%s hakkında biraz daha detay verebilir misiniz?", keywords[0]))
		return safe
	}

	asked := countAssistantTurns(history)
	return probes[asked%len(probes)]
}

func countAssistantTurns(history []dialog.Turn) int {
	n := 0
	for _, t := range history {
		if t.Role == dialog.RoleAssistant {
			n++
		}
	}
	return n
}

func lastUserAnswer(history []dialog.Turn) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == dialog.RoleUser {
			return history[i].Text
		}
	}
	return ""
}
