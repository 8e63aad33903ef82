package dialog

import (
	"fmt"
	"strings"
)

// Requirement is one job requirement the interview should probe.
type Requirement struct {
	Label     string   `json:"label"`
	Keywords  []string `json:"keywords"`
	Followups []string `json:"followups"`
	Weight    int      `json:"weight"`
}

// Config is the read-only dialog tuning owned by the job. The planner never
// mutates it.
type Config struct {
	Requirements    []Requirement `json:"requirements"`
	MaxQuestions    int           `json:"max_questions"`
	InitialQuestion string        `json:"initial_question,omitempty"`
	Language        string        `json:"language,omitempty"`
}

// Turn is one history entry, ordered oldest to newest.
type Turn struct {
	Role string
	Text string
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Result is the planner's decision for the next turn.
type Result struct {
	Question string
	Done     bool
}

// NextQuestion picks the next interviewer question from the job's requirement
// configuration and conversation history. Stateless and deterministic: a
// greedy pass that steers toward the least-covered, highest-weight
// requirement. It only needs to avoid re-asking covered material, not to find
// an optimal interview script.
func NextQuestion(history []Turn, cfg Config) Result {
	asked := countAssistantTurns(history)

	if cfg.MaxQuestions > 0 && asked >= cfg.MaxQuestions {
		return Result{Done: true}
	}

	if asked == 0 {
		return Result{Question: openingQuestion(cfg)}
	}

	req, ok := leastCoveredRequirement(history, cfg.Requirements)
	if !ok {
		return Result{Question: genericProbe(cfg.Language, "")}
	}

	if q := pickFollowup(history, req); q != "" {
		return Result{Question: q}
	}
	return Result{Question: genericProbe(cfg.Language, req.Label)}
}

func countAssistantTurns(history []Turn) int {
	n := 0
	for _, t := range history {
		if t.Role == RoleAssistant {
			n++
		}
	}
	return n
}

func openingQuestion(cfg Config) string {
	if q := strings.TrimSpace(cfg.InitialQuestion); q != "" {
		return q
	}
	if req, ok := heaviestRequirement(cfg.Requirements); ok {
		return genericProbe(cfg.Language, req.Label)
	}
	if isEnglish(cfg.Language) {
		return "Could you tell me about yourself and your experience?"
	}
	return "Kendinizden ve deneyimlerinizden bahseder misiniz?"
}

func heaviestRequirement(reqs []Requirement) (Requirement, bool) {
	best := -1
	for i, r := range reqs {
		if strings.TrimSpace(r.Label) == "" {
			continue
		}
		if best < 0 || r.Weight > reqs[best].Weight {
			best = i
		}
	}
	if best < 0 {
		return Requirement{}, false
	}
	return reqs[best], true
}

// leastCoveredRequirement scores every requirement by (1 - coverage) with a
// small weight bonus as tie-break and returns the highest-scoring one.
// Coverage is the fraction of the requirement's keywords present in the
// user's answers so far.
func leastCoveredRequirement(history []Turn, reqs []Requirement) (Requirement, bool) {
	userText := joinUserText(history)

	best := -1
	bestScore := 0.0
	for i, r := range reqs {
		if len(r.Keywords) == 0 && strings.TrimSpace(r.Label) == "" {
			continue
		}
		coverage := 0.0
		if len(r.Keywords) > 0 {
			coverage = float64(KeywordHits(r.Keywords, userText)) / float64(len(r.Keywords))
		}
		score := (1 - coverage) + 0.1*float64(r.Weight)/100
		if best < 0 || score > bestScore {
			best = i
			bestScore = score
		}
	}
	if best < 0 {
		return Requirement{}, false
	}
	return reqs[best], true
}

// pickFollowup prefers a followup overlapping keywords from the most recent
// user answer, then the first unasked followup. Followups already asked
// verbatim are never repeated.
func pickFollowup(history []Turn, req Requirement) string {
	asked := make(map[string]struct{})
	for _, t := range history {
		if t.Role == RoleAssistant {
			asked[strings.TrimSpace(t.Text)] = struct{}{}
		}
	}

	var candidates []string
	for _, f := range req.Followups {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if _, used := asked[f]; used {
			continue
		}
		candidates = append(candidates, f)
	}
	if len(candidates) == 0 {
		return ""
	}

	answerKeywords := ExtractKeywords(lastUserText(history))
	for _, f := range candidates {
		if KeywordOverlap(answerKeywords, ExtractKeywords(f)) > 0 {
			return f
		}
	}
	return candidates[0]
}

func genericProbe(language, label string) string {
	label = strings.TrimSpace(label)
	if isEnglish(language) {
		if label == "" {
			return "Could you tell me more about your recent work?"
		}
		return fmt.Sprintf("Could you tell me about your experience with %s?", label)
	}
	if label == "" {
		return "Son dönemde üzerinde çalıştığınız işlerden bahseder misiniz?"
	}
	return fmt.Sprintf("%s konusundaki deneyiminizden bahseder misiniz?", label)
}

func isEnglish(language string) bool {
	return strings.EqualFold(strings.TrimSpace(language), "en")
}

func joinUserText(history []Turn) string {
	var b strings.Builder
	for _, t := range history {
		if t.Role != RoleUser {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(t.Text)
	}
	return b.String()
}

func lastUserText(history []Turn) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == RoleUser {
			return history[i].Text
		}
	}
	return ""
}
