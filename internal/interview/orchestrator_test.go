package interview

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/intervyn/intervyn/internal/dialog"
	"github.com/intervyn/intervyn/internal/llm"
)

type fakeGenerator struct {
	calls     int
	preferred string
	content   string
	err       error
	deltas    []string
}

func (f *fakeGenerator) Generate(_ context.Context, _ llm.Request, preferred string) (llm.Response, error) {
	f.calls++
	f.preferred = preferred
	if f.err != nil {
		return llm.Response{}, f.err
	}
	return llm.Response{Content: f.content, Provider: "fake"}, nil
}

func (f *fakeGenerator) GenerateStream(ctx context.Context, req llm.Request, preferred string, onDelta llm.DeltaHandler) (llm.Response, error) {
	f.calls++
	f.preferred = preferred
	var b strings.Builder
	for _, d := range f.deltas {
		b.WriteString(d)
		if onDelta != nil {
			if err := onDelta(d); err != nil {
				return llm.Response{Content: b.String()}, err
			}
		}
	}
	if f.err != nil {
		return llm.Response{Content: b.String()}, f.err
	}
	if b.Len() == 0 {
		b.WriteString(f.content)
	}
	return llm.Response{Content: b.String(), Provider: "fake"}, nil
}

func historyWithQuestions(n int) []dialog.Turn {
	var turns []dialog.Turn
	for i := 0; i < n; i++ {
		turns = append(turns, dialog.Turn{Role: dialog.RoleAssistant, Text: "Soru?"})
		turns = append(turns, dialog.Turn{Role: dialog.RoleUser, Text: "Cevap"})
	}
	return turns
}

func TestGenerateNextQuestionStopsAtBudgetWithoutProviderCall(t *testing.T) {
	gen := &fakeGenerator{content: "Bir sonraki soru?"}
	orch := NewOrchestrator(gen, nil, false, nil)

	res := orch.GenerateNextQuestion(context.Background(), "iv-1", historyWithQuestions(10), dialog.Config{MaxQuestions: 10})

	if !res.Done {
		t.Fatal("expected Done at exhausted turn budget")
	}
	if res.Question != "" {
		t.Fatalf("Question = %q, want empty on termination", res.Question)
	}
	if gen.calls != 0 {
		t.Fatalf("provider calls = %d, want 0 when budget exhausted", gen.calls)
	}
}

func TestGenerateNextQuestionTerminationSentinel(t *testing.T) {
	for _, raw := range []string{"INTERVIEW_COMPLETE", "  interview_complete \n"} {
		gen := &fakeGenerator{content: raw}
		orch := NewOrchestrator(gen, nil, false, nil)

		res := orch.GenerateNextQuestion(context.Background(), "iv-1", historyWithQuestions(2), dialog.Config{MaxQuestions: 10})
		if !res.Done {
			t.Fatalf("content %q: expected Done", raw)
		}
	}
}

func TestGenerateNextQuestionSentinelSubstringDoesNotTerminate(t *testing.T) {
	gen := &fakeGenerator{content: "Yakında INTERVIEW_COMPLETE diyeceğim, son sorum şu?"}
	orch := NewOrchestrator(gen, nil, false, nil)

	res := orch.GenerateNextQuestion(context.Background(), "iv-1", historyWithQuestions(2), dialog.Config{MaxQuestions: 10})
	if res.Done {
		t.Fatal("substring sentinel must not terminate the interview")
	}
	if res.Question == "" {
		t.Fatal("expected a question")
	}
}

func TestGenerateNextQuestionFallsBackLocally(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("all providers down")}
	orch := NewOrchestrator(gen, nil, false, nil)

	history := append(historyWithQuestions(1),
		dialog.Turn{Role: dialog.RoleUser, Text: "Kubernetes üzerinde mikroservisler geliştirdim."})
	res := orch.GenerateNextQuestion(context.Background(), "iv-1", history, dialog.Config{MaxQuestions: 10})

	if res.Done {
		t.Fatal("fallback must not terminate the interview")
	}
	if res.Question == "" {
		t.Fatal("fallback produced no question")
	}
	if !strings.HasSuffix(res.Question, "?") {
		t.Fatalf("fallback question %q does not end with ?", res.Question)
	}
}

func TestFallbackUsesPlannerWhenConfigured(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("all providers down")}
	orch := NewOrchestrator(gen, nil, false, nil)

	dcfg := dialog.Config{
		MaxQuestions: 10,
		Language:     "tr",
		Requirements: []dialog.Requirement{{
			Label:     "Python deneyimi",
			Keywords:  []string{"python", "django"},
			Followups: []string{"Python ile en son hangi projeyi geliştirdiniz?"},
			Weight:    80,
		}},
	}
	history := []dialog.Turn{
		{Role: dialog.RoleAssistant, Text: "Kendinizden bahseder misiniz?"},
		{Role: dialog.RoleUser, Text: "Backend geliştiriciyim, ağırlıklı Java kullandım."},
	}

	res := orch.GenerateNextQuestion(context.Background(), "iv-1", history, dcfg)
	if res.Done {
		t.Fatal("planner fallback must not terminate mid-budget")
	}
	if res.Question != "Python ile en son hangi projeyi geliştirdiniz?" {
		t.Fatalf("Question = %q, want the planner followup", res.Question)
	}
}

func TestPreferredProviderOnlyInProduction(t *testing.T) {
	gen := &fakeGenerator{content: "Soru?"}
	orch := NewOrchestrator(gen, nil, true, nil)
	orch.GenerateNextQuestion(context.Background(), "iv-1", nil, dialog.Config{MaxQuestions: 10})
	if gen.preferred != "openai" {
		t.Fatalf("preferred = %q, want openai in production", gen.preferred)
	}

	gen = &fakeGenerator{content: "Soru?"}
	orch = NewOrchestrator(gen, nil, false, nil)
	orch.GenerateNextQuestion(context.Background(), "iv-1", nil, dialog.Config{MaxQuestions: 10})
	if gen.preferred != "" {
		t.Fatalf("preferred = %q, want empty outside production", gen.preferred)
	}
}

func TestStreamNextQuestionReturnsPartialOnMidStreamFailure(t *testing.T) {
	failure := errors.New("stream cut")
	gen := &fakeGenerator{deltas: []string{"Mer", "haba"}, err: failure}
	orch := NewOrchestrator(gen, nil, false, nil)

	var got []string
	res, err := orch.StreamNextQuestion(context.Background(), "iv-1", nil, dialog.Config{MaxQuestions: 10}, func(d string) error {
		got = append(got, d)
		return nil
	})

	if !errors.Is(err, failure) {
		t.Fatalf("err = %v, want the stream failure", err)
	}
	if res.Question != "Merhaba" {
		t.Fatalf("partial accumulation = %q, want %q", res.Question, "Merhaba")
	}
	if len(got) != 2 {
		t.Fatalf("delivered deltas = %d, want 2", len(got))
	}
}

func TestStreamNextQuestionTotalFailureEmitsFallbackDelta(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("no providers")}
	orch := NewOrchestrator(gen, nil, false, nil)

	var got []string
	res, err := orch.StreamNextQuestion(context.Background(), "iv-1", nil, dialog.Config{MaxQuestions: 10}, func(d string) error {
		got = append(got, d)
		return nil
	})

	if err != nil {
		t.Fatalf("err = %v, want nil after local fallback", err)
	}
	if res.Question == "" || len(got) != 1 || got[0] != res.Question {
		t.Fatalf("fallback delivery mismatch: question %q, deltas %v", res.Question, got)
	}
}

func TestStreamNextQuestionWithholdsSentinelDeltas(t *testing.T) {
	gen := &fakeGenerator{deltas: []string{"INTERVIEW", "_COMPLETE"}}
	orch := NewOrchestrator(gen, nil, false, nil)

	var got []string
	res, err := orch.StreamNextQuestion(context.Background(), "iv-1", historyWithQuestions(2), dialog.Config{MaxQuestions: 10}, func(d string) error {
		got = append(got, d)
		return nil
	})

	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if !res.Done {
		t.Fatal("expected Done on full sentinel")
	}
	if len(got) != 0 {
		t.Fatalf("delivered deltas = %v, want none on a terminating turn", got)
	}
}

func TestStreamNextQuestionReleasesHeldPrefixOnDivergence(t *testing.T) {
	gen := &fakeGenerator{deltas: []string{"INTER", "NET bağlantınız nasıl", "?"}}
	orch := NewOrchestrator(gen, nil, false, nil)

	var got []string
	res, err := orch.StreamNextQuestion(context.Background(), "iv-1", historyWithQuestions(2), dialog.Config{MaxQuestions: 10}, func(d string) error {
		got = append(got, d)
		return nil
	})

	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if res.Done {
		t.Fatal("diverging text must not terminate the interview")
	}
	if strings.Join(got, "") != "INTERNET bağlantınız nasıl?" {
		t.Fatalf("delivered text = %q, want full question including held prefix", strings.Join(got, ""))
	}
	// The held prefix is released together with the diverging delta.
	if len(got) != 2 || got[0] != "INTERNET bağlantınız nasıl" {
		t.Fatalf("deltas = %v, want held prefix merged into the first delivered delta", got)
	}
}

func TestStreamNextQuestionBudgetStop(t *testing.T) {
	gen := &fakeGenerator{deltas: []string{"asla"}}
	orch := NewOrchestrator(gen, nil, false, nil)

	res, err := orch.StreamNextQuestion(context.Background(), "iv-1", historyWithQuestions(3), dialog.Config{MaxQuestions: 3}, func(string) error {
		t.Fatal("no deltas expected at exhausted budget")
		return nil
	})
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if !res.Done || gen.calls != 0 {
		t.Fatalf("Done = %v, provider calls = %d; want terminal with no calls", res.Done, gen.calls)
	}
}
