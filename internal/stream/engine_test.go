package stream

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/intervyn/intervyn/internal/dialog"
	"github.com/intervyn/intervyn/internal/interview"
	"github.com/intervyn/intervyn/internal/llm"
	"github.com/intervyn/intervyn/internal/memory"
	"github.com/intervyn/intervyn/internal/observability"
)

type sentEvent struct {
	event EventType
	data  any
}

// recordSink collects events and can simulate a client disconnect by failing
// every send after a given number of successful ones.
type recordSink struct {
	events    []sentEvent
	failAfter int
}

func newRecordSink() *recordSink {
	return &recordSink{failAfter: -1}
}

func (s *recordSink) Send(event EventType, data any) error {
	if s.failAfter >= 0 && len(s.events) >= s.failAfter {
		return errors.New("client gone")
	}
	s.events = append(s.events, sentEvent{event: event, data: data})
	return nil
}

func (s *recordSink) eventTypes() []EventType {
	out := make([]EventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.event)
	}
	return out
}

// scriptedStreamer mimics the provider chain's delivery contract: deltas are
// pushed in order and a send failure stops delivery but keeps the
// accumulated text.
type scriptedStreamer struct {
	deltas []string
	err    error
	done   bool
	calls  int
}

func (s *scriptedStreamer) StreamNextQuestion(_ context.Context, _ string, _ []dialog.Turn, _ dialog.Config, onDelta llm.DeltaHandler) (interview.Result, error) {
	s.calls++
	if s.done {
		return interview.Result{Done: true}, nil
	}
	var b strings.Builder
	for _, d := range s.deltas {
		b.WriteString(d)
		if onDelta != nil {
			if err := onDelta(d); err != nil {
				return interview.Result{Question: b.String()}, err
			}
		}
	}
	return interview.Result{Question: b.String()}, s.err
}

func testDirectory() *interview.InMemoryDirectory {
	dir := interview.NewInMemoryDirectory()
	dir.Add(
		interview.Interview{
			ID:           "iv-1",
			JobID:        "job-1",
			CandidateID:  "cand-1",
			Language:     "tr",
			MaxQuestions: 10,
			Dialog:       dialog.Config{MaxQuestions: 10},
		},
		interview.CandidateToken{Token: "tok", ExpiresAt: time.Now().Add(time.Hour)},
	)
	return dir
}

func newTestEngine(streamer QuestionStreamer, store interview.Store) *Engine {
	return NewEngine(testDirectory(), store, streamer, nil, nil, nil, observability.NewStageWindow(16), nil)
}

func TestRunHappyPath(t *testing.T) {
	store := interview.NewInMemoryStore()
	streamer := &scriptedStreamer{deltas: []string{"Python ile ", "neler geliştirdiniz?"}}
	engine := newTestEngine(streamer, store)
	sink := newRecordSink()

	err := engine.Run(context.Background(), TurnRequest{
		InterviewID: "iv-1",
		Token:       "tok",
		UserText:    "Merhaba, ben Ali.",
	}, sink)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []EventType{EventReady, EventDelta, EventDelta, EventDone}
	got := sink.eventTypes()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}

	done := sink.events[len(sink.events)-1].data.(DoneData)
	if done.Question != "Python ile neler geliştirdiniz?" || done.Finished {
		t.Fatalf("done = %+v", done)
	}
	if done.Length != len(done.Question) {
		t.Fatalf("done length = %d, want %d", done.Length, len(done.Question))
	}

	msgs, _ := store.ListMessages(context.Background(), "iv-1")
	if len(msgs) != 2 {
		t.Fatalf("persisted messages = %d, want 2", len(msgs))
	}
	if msgs[0].Role != interview.RoleUser || msgs[0].SequenceNumber != 1 {
		t.Fatalf("first row = %+v, want user at sequence 1", msgs[0])
	}
	if msgs[1].Role != interview.RoleAssistant || msgs[1].SequenceNumber != 2 {
		t.Fatalf("second row = %+v, want assistant at sequence 2", msgs[1])
	}
}

func TestRunUnknownInterviewFailsClosed(t *testing.T) {
	store := interview.NewInMemoryStore()
	streamer := &scriptedStreamer{deltas: []string{"soru?"}}
	engine := newTestEngine(streamer, store)
	sink := newRecordSink()

	err := engine.Run(context.Background(), TurnRequest{
		InterviewID: "missing",
		Token:       "tok",
		UserText:    "Merhaba",
	}, sink)

	if !errors.Is(err, interview.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if streamer.calls != 0 {
		t.Fatal("generation must not run for an unknown interview")
	}
	msgs, _ := store.ListMessages(context.Background(), "missing")
	if len(msgs) != 0 {
		t.Fatalf("persisted %d messages for an unknown interview", len(msgs))
	}
	if len(sink.events) != 1 || sink.events[0].event != EventError {
		t.Fatalf("events = %v, want a single error", sink.eventTypes())
	}
	if data := sink.events[0].data.(ErrorData); data.Code != CodeInterviewNotFound {
		t.Fatalf("error code = %q", data.Code)
	}
}

func TestRunRejectsBadToken(t *testing.T) {
	cases := []struct {
		name     string
		token    string
		expires  time.Time
		wantCode string
	}{
		{name: "wrong token", token: "nope", expires: time.Now().Add(time.Hour), wantCode: CodeTokenInvalid},
		{name: "expired token", token: "tok", expires: time.Now().Add(-time.Minute), wantCode: CodeTokenExpired},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := interview.NewInMemoryDirectory()
			dir.Add(
				interview.Interview{ID: "iv-1", Dialog: dialog.Config{MaxQuestions: 10}},
				interview.CandidateToken{Token: "tok", ExpiresAt: tc.expires},
			)
			store := interview.NewInMemoryStore()
			engine := NewEngine(dir, store, &scriptedStreamer{}, nil, nil, nil, nil, nil)
			sink := newRecordSink()

			err := engine.Run(context.Background(), TurnRequest{
				InterviewID: "iv-1",
				Token:       tc.token,
				UserText:    "Merhaba",
			}, sink)
			if err == nil {
				t.Fatal("expected an access error")
			}

			msgs, _ := store.ListMessages(context.Background(), "iv-1")
			if len(msgs) != 0 {
				t.Fatal("nothing may persist before access is granted")
			}
			if len(sink.events) != 1 {
				t.Fatalf("events = %v", sink.eventTypes())
			}
			if data := sink.events[0].data.(ErrorData); data.Code != tc.wantCode {
				t.Fatalf("error code = %q, want %q", data.Code, tc.wantCode)
			}
		})
	}
}

func TestRunPersistsFullTextAfterDisconnect(t *testing.T) {
	store := interview.NewInMemoryStore()
	streamer := &scriptedStreamer{deltas: []string{"Mer", "haba"}}
	engine := newTestEngine(streamer, store)

	// The client survives ready plus both deltas, then drops before the
	// closing events go out.
	sink := newRecordSink()
	sink.failAfter = 3

	err := engine.Run(context.Background(), TurnRequest{
		InterviewID: "iv-1",
		Token:       "tok",
		UserText:    "Selam",
	}, sink)
	if err != nil {
		t.Fatalf("Run() error = %v, disconnect after delivery is not a turn failure", err)
	}

	msgs, _ := store.ListMessages(context.Background(), "iv-1")
	if len(msgs) != 2 {
		t.Fatalf("persisted messages = %d, want 2", len(msgs))
	}
	if msgs[1].Content != "Merhaba" {
		t.Fatalf("assistant content = %q, want %q", msgs[1].Content, "Merhaba")
	}
}

func TestRunPersistsPartialOnMidStreamDisconnect(t *testing.T) {
	store := interview.NewInMemoryStore()
	streamer := &scriptedStreamer{deltas: []string{"Mer", "haba"}}
	engine := newTestEngine(streamer, store)

	// Drop after ready plus the first delta; the second delta never sends
	// but its text was already accumulated by the generator.
	sink := newRecordSink()
	sink.failAfter = 2

	_ = engine.Run(context.Background(), TurnRequest{
		InterviewID: "iv-1",
		Token:       "tok",
		UserText:    "Selam",
	}, sink)

	msgs, _ := store.ListMessages(context.Background(), "iv-1")
	if len(msgs) != 2 {
		t.Fatalf("persisted messages = %d, want 2", len(msgs))
	}
	if msgs[1].Content != "Merhaba" {
		t.Fatalf("assistant content = %q, want full accumulation %q", msgs[1].Content, "Merhaba")
	}
}

func TestRunEmitsErrorThenDoneOnProviderFailure(t *testing.T) {
	store := interview.NewInMemoryStore()
	streamer := &scriptedStreamer{deltas: []string{"Kıs", "men"}, err: errors.New("provider lost")}
	engine := newTestEngine(streamer, store)
	sink := newRecordSink()

	err := engine.Run(context.Background(), TurnRequest{
		InterviewID: "iv-1",
		Token:       "tok",
		UserText:    "Selam",
	}, sink)
	if err == nil {
		t.Fatal("expected the stream error to propagate")
	}

	got := sink.eventTypes()
	want := []EventType{EventReady, EventDelta, EventDelta, EventError, EventDone}
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}
	if data := sink.events[3].data.(ErrorData); data.Code != CodeStreamInterrupted {
		t.Fatalf("error code = %q", data.Code)
	}

	msgs, _ := store.ListMessages(context.Background(), "iv-1")
	if len(msgs) != 2 || msgs[1].Content != "Kısmen" {
		t.Fatalf("partial text not persisted: %+v", msgs)
	}
}

func TestRunCountsReadyOnlyAfterDelivery(t *testing.T) {
	metrics := observability.NewMetrics("test_stream_engine_" + time.Now().Format("150405") + "_" + time.Now().Format("000000000"))
	store := interview.NewInMemoryStore()
	streamer := &scriptedStreamer{deltas: []string{"Soru?"}}
	engine := NewEngine(testDirectory(), store, streamer, nil, nil, metrics, nil, nil)

	// Client drops before the ready event goes out.
	sink := newRecordSink()
	sink.failAfter = 0

	if err := engine.Run(context.Background(), TurnRequest{
		InterviewID: "iv-1",
		Token:       "tok",
		UserText:    "Selam",
	}, sink); err == nil {
		t.Fatal("expected the failed ready send to propagate")
	}
	if got := testutil.ToFloat64(metrics.StreamEvents.WithLabelValues("ready")); got != 0 {
		t.Fatalf("ready events = %v, want 0 when the send failed", got)
	}

	sink = newRecordSink()
	if err := engine.Run(context.Background(), TurnRequest{
		InterviewID: "iv-1",
		Token:       "tok",
		UserText:    "Selam tekrar",
	}, sink); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := testutil.ToFloat64(metrics.StreamEvents.WithLabelValues("ready")); got != 1 {
		t.Fatalf("ready events = %v, want 1 after a delivered ready", got)
	}
}

func TestRunFinishedInterviewEmitsDoneWithoutQuestion(t *testing.T) {
	store := interview.NewInMemoryStore()
	streamer := &scriptedStreamer{done: true}
	engine := newTestEngine(streamer, store)
	sink := newRecordSink()

	if err := engine.Run(context.Background(), TurnRequest{
		InterviewID: "iv-1",
		Token:       "tok",
		UserText:    "Son cevabım bu.",
	}, sink); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	last := sink.events[len(sink.events)-1]
	if last.event != EventDone {
		t.Fatalf("last event = %q, want done", last.event)
	}
	done := last.data.(DoneData)
	if !done.Finished || done.Question != "" || done.Length != 0 {
		t.Fatalf("done = %+v, want finished with no question", done)
	}

	msgs, _ := store.ListMessages(context.Background(), "iv-1")
	if len(msgs) != 1 || msgs[0].Role != interview.RoleUser {
		t.Fatalf("messages = %+v, want only the user turn", msgs)
	}
}

func TestRunUpdatesSessionMemory(t *testing.T) {
	store := interview.NewInMemoryStore()
	mem := memory.NewStore(nil, memory.MirrorBestEffort, nil)
	enricher := memory.NewEnricher(mem)
	streamer := &scriptedStreamer{deltas: []string{"Docker deneyiminizi anlatır mısınız?"}}
	engine := NewEngine(testDirectory(), store, streamer, mem, enricher, nil, nil, nil)
	sink := newRecordSink()

	if err := engine.Run(context.Background(), TurnRequest{
		InterviewID: "iv-1",
		Token:       "tok",
		UserText:    "Kubernetes ve Docker kullandım.",
	}, sink); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	snap := mem.Snapshot(context.Background(), "iv-1")
	if len(snap.LastTurns) != 2 {
		t.Fatalf("memory turns = %d, want 2", len(snap.LastTurns))
	}
	if snap.Facts["last_question"] == "" {
		t.Fatal("enricher did not record the last question")
	}
}
