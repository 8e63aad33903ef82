package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/intervyn/intervyn/internal/config"
	"github.com/intervyn/intervyn/internal/dialog"
	"github.com/intervyn/intervyn/internal/interview"
	"github.com/intervyn/intervyn/internal/observability"
	"github.com/intervyn/intervyn/internal/stream"
)

// QuestionGenerator is the synchronous generation surface.
// *interview.Orchestrator satisfies it.
type QuestionGenerator interface {
	GenerateNextQuestion(ctx context.Context, interviewID string, history []dialog.Turn, dcfg dialog.Config) interview.Result
}

// Transcriber converts an audio answer to text. *transcribe.Chain satisfies
// it.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, contentType string) (text, provider string, err error)
}

type Server struct {
	cfg         config.Config
	directory   interview.Directory
	store       interview.Store
	generator   QuestionGenerator
	engine      *stream.Engine
	transcriber Transcriber
	metrics     *observability.Metrics
	window      *observability.StageWindow
	logger      *zap.Logger
	upgrader    websocket.Upgrader
}

func New(
	cfg config.Config,
	directory interview.Directory,
	store interview.Store,
	generator QuestionGenerator,
	engine *stream.Engine,
	transcriber Transcriber,
	metrics *observability.Metrics,
	window *observability.StageWindow,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:         cfg,
		directory:   directory,
		store:       store,
		generator:   generator,
		engine:      engine,
		transcriber: transcriber,
		metrics:     metrics,
		window:      window,
		logger:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Browser connections must come from the same origin unless
				// explicitly opened up; other sites must not be able to drive
				// a candidate's interview.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/v1/perf/latency", s.handlePerfLatency)

	r.Post("/v1/interviews/{id}/turn", s.handleTurn)
	r.Post("/v1/interviews/{id}/turn/stream", s.handleTurnSSE)
	r.Get("/v1/interviews/{id}/ws", s.handleTurnWS)
	r.Get("/v1/interviews/{id}/messages", s.handleListMessages)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (s *Server) handlePerfLatency(w http.ResponseWriter, _ *http.Request) {
	if s.window == nil {
		respondJSON(w, http.StatusOK, observability.StageSnapshot{})
		return
	}
	respondJSON(w, http.StatusOK, s.window.Snapshot())
}

type turnRequest struct {
	Token            string `json:"token"`
	Text             string `json:"text"`
	AudioBase64      string `json:"audio_base64,omitempty"`
	AudioContentType string `json:"audio_content_type,omitempty"`
}

type turnResponse struct {
	Question   string `json:"question"`
	Done       bool   `json:"done"`
	Transcript string `json:"transcript,omitempty"`
}

// handleTurn is the non-streaming turn endpoint: one answer in, one complete
// question out. The durability contract matches the streaming path.
func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	interviewID := chi.URLParam(r, "id")

	var req turnRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	iv, ok := s.authorize(w, r.Context(), interviewID, req.Token)
	if !ok {
		return
	}

	text, transcript, ok := s.resolveAnswerText(w, r.Context(), req)
	if !ok {
		return
	}
	if text == "" {
		respondError(w, http.StatusBadRequest, "empty_answer", "answer text or audio is required")
		return
	}

	if _, err := s.store.PersistUserMessage(r.Context(), interviewID, text); err != nil {
		s.logger.Error("persist user message failed", zap.String("interview_id", interviewID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "persist_failed", "could not store the answer")
		return
	}

	history, err := s.loadHistory(r.Context(), interviewID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "persist_failed", "could not load the transcript")
		return
	}

	result := s.generator.GenerateNextQuestion(r.Context(), interviewID, history, iv.Dialog)
	if q := strings.TrimSpace(result.Question); q != "" {
		// Detached from the request context so a client timeout between
		// generation and response cannot lose the question.
		if _, err := s.store.PersistAssistantMessage(context.WithoutCancel(r.Context()), interviewID, q); err != nil {
			s.logger.Error("persist assistant message failed", zap.String("interview_id", interviewID), zap.Error(err))
		}
	}

	respondJSON(w, http.StatusOK, turnResponse{
		Question:   result.Question,
		Done:       result.Done,
		Transcript: transcript,
	})
}

// handleTurnSSE streams the next question over server-sent events. The
// request body carries the answer; the response is the event stream.
func (s *Server) handleTurnSSE(w http.ResponseWriter, r *http.Request) {
	interviewID := chi.URLParam(r, "id")

	var req turnRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	// Access is checked before any transcription work; the engine re-checks
	// as the fail-closed backstop.
	if _, ok := s.authorize(w, r.Context(), interviewID, req.Token); !ok {
		return
	}

	text, _, ok := s.resolveAnswerText(w, r.Context(), req)
	if !ok {
		return
	}

	sink, err := newSSESink(w)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "streaming_unsupported", err.Error())
		return
	}

	_ = s.engine.Run(r.Context(), stream.TurnRequest{
		InterviewID: interviewID,
		Token:       req.Token,
		UserText:    text,
	}, sink)
}

// handleTurnWS serves turns over a websocket. Each inbound JSON message is
// one answer; the stream events for that turn are written back before the
// next message is read.
func (s *Server) handleTurnWS(w http.ResponseWriter, r *http.Request) {
	interviewID := chi.URLParam(r, "id")
	token := strings.TrimSpace(r.URL.Query().Get("token"))

	if _, ok := s.authorize(w, r.Context(), interviewID, token); !ok {
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	conn.SetReadLimit(2 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	sink := newWSSink(conn)
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

		var msg wsTurnMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			_ = sink.Send(stream.EventError, stream.ErrorData{Code: "invalid_client_message", Detail: err.Error()})
			continue
		}

		if err := s.engine.Run(r.Context(), stream.TurnRequest{
			InterviewID: interviewID,
			Token:       token,
			UserText:    msg.Text,
		}, sink); err != nil && r.Context().Err() != nil {
			return
		}
	}
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	interviewID := chi.URLParam(r, "id")
	token := strings.TrimSpace(r.URL.Query().Get("token"))

	if _, ok := s.authorize(w, r.Context(), interviewID, token); !ok {
		return
	}

	msgs, err := s.store.ListMessages(r.Context(), interviewID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "persist_failed", "could not load the transcript")
		return
	}
	if msgs == nil {
		msgs = []interview.Message{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

// authorize resolves the interview and checks the candidate token, writing
// the error response itself on failure.
func (s *Server) authorize(w http.ResponseWriter, ctx context.Context, interviewID, token string) (*interview.Interview, bool) {
	iv, err := s.directory.GetInterview(ctx, interviewID)
	if errors.Is(err, interview.ErrNotFound) {
		respondError(w, http.StatusNotFound, "interview_not_found", "no such interview")
		return nil, false
	}
	if err != nil {
		s.logger.Error("interview lookup failed", zap.String("interview_id", interviewID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "directory_unavailable", "could not load the interview")
		return nil, false
	}

	if err := s.directory.ValidateCandidateToken(ctx, interviewID, token); err != nil {
		code := "token_invalid"
		if errors.Is(err, interview.ErrTokenExpired) {
			code = "token_expired"
		}
		respondError(w, http.StatusUnauthorized, code, "access denied")
		return nil, false
	}
	return iv, true
}

// resolveAnswerText returns the answer text, transcribing audio when the
// request carries it instead of text. The bool is false when an error
// response was already written.
func (s *Server) resolveAnswerText(w http.ResponseWriter, ctx context.Context, req turnRequest) (text, transcript string, ok bool) {
	text = strings.TrimSpace(req.Text)
	if text != "" || req.AudioBase64 == "" {
		return text, "", true
	}

	if s.transcriber == nil {
		respondError(w, http.StatusNotImplemented, "transcription_unavailable", "audio answers are not enabled")
		return "", "", false
	}

	audio, err := base64.StdEncoding.DecodeString(req.AudioBase64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_audio", "audio_base64 is not valid base64")
		return "", "", false
	}

	sttCtx, cancel := context.WithTimeout(ctx, s.sttTimeout())
	defer cancel()
	transcript, provider, err := s.transcriber.Transcribe(sttCtx, audio, req.AudioContentType)
	if err != nil {
		s.logger.Error("transcription failed", zap.Error(err))
		respondError(w, http.StatusBadGateway, "transcription_failed", "could not transcribe the audio")
		return "", "", false
	}
	s.logger.Debug("audio answer transcribed",
		zap.String("provider", provider),
		zap.Int("transcript_len", len(transcript)))
	return transcript, transcript, true
}

func (s *Server) sttTimeout() time.Duration {
	if s.cfg.STTTimeout > 0 {
		return s.cfg.STTTimeout
	}
	return 45 * time.Second
}

func (s *Server) loadHistory(ctx context.Context, interviewID string) ([]dialog.Turn, error) {
	msgs, err := s.store.ListMessages(ctx, interviewID)
	if err != nil {
		return nil, err
	}
	turns := make([]dialog.Turn, 0, len(msgs))
	for _, m := range msgs {
		turns = append(turns, dialog.Turn{Role: m.Role, Text: m.Content})
	}
	return turns, nil
}

const wsReadTimeout = 120 * time.Second

type wsTurnMessage struct {
	Text string `json:"text"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(out)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
