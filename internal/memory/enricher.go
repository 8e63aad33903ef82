package memory

import (
	"context"
	"strings"
)

const (
	summaryPairCount   = 4
	questionSnippetLen = 100
	answerSnippetLen   = 220
	vocabularyWindow   = 12
)

// techVocabulary is the fixed set of technology names the enricher looks for
// in candidate answers. Matching is case-insensitive substring.
var techVocabulary = []string{
	"python", "django", "flask", "fastapi", "golang", "java", "kotlin",
	"javascript", "typescript", "react", "vue", "angular", "node",
	"postgresql", "postgres", "mysql", "mongodb", "redis", "elasticsearch",
	"kafka", "rabbitmq", "docker", "kubernetes", "terraform", "aws", "gcp",
	"azure", "linux", "graphql", "grpc",
}

// Enricher derives advisory generation context from turn history and writes
// it into the session memory store. Its output steers question generation and
// must never be treated as ground-truth transcript data.
type Enricher struct {
	store *Store
}

func NewEnricher(store *Store) *Enricher {
	return &Enricher{store: store}
}

// Enrich rebuilds the rolling summary from the most recent question/answer
// pairs, refreshes the technology-mention fact over the recent window, and
// records the last assistant question verbatim as a steering fact.
func (e *Enricher) Enrich(ctx context.Context, interviewID string, history []TurnEntry) error {
	if summary := buildRollingSummary(history); summary != "" {
		if err := e.store.UpdateSummary(ctx, interviewID, summary); err != nil {
			return err
		}
	}

	if mentions := extractTechMentions(history); len(mentions) > 0 {
		if err := e.store.UpsertFact(ctx, interviewID, "mentioned_technologies", strings.Join(mentions, ", ")); err != nil {
			return err
		}
	}

	if q := lastAssistantText(history); q != "" {
		if err := e.store.UpsertFact(ctx, interviewID, "last_question", q); err != nil {
			return err
		}
	}
	return nil
}

// buildRollingSummary pairs each assistant question with the user answer that
// follows it and renders the most recent pairs, newest last.
func buildRollingSummary(history []TurnEntry) string {
	type pair struct{ question, answer string }
	var pairs []pair

	for i, turn := range history {
		if turn.Role != "assistant" {
			continue
		}
		answer := ""
		for j := i + 1; j < len(history); j++ {
			if history[j].Role == "user" {
				answer = history[j].Text
				break
			}
			if history[j].Role == "assistant" {
				break
			}
		}
		pairs = append(pairs, pair{question: turn.Text, answer: answer})
	}

	if len(pairs) > summaryPairCount {
		pairs = pairs[len(pairs)-summaryPairCount:]
	}

	var parts []string
	for _, p := range pairs {
		q := truncate(strings.TrimSpace(p.question), questionSnippetLen)
		a := truncate(strings.TrimSpace(p.answer), answerSnippetLen)
		if q == "" && a == "" {
			continue
		}
		if a == "" {
			parts = append(parts, "S: "+q)
			continue
		}
		parts = append(parts, "S: "+q+" | C: "+a)
	}
	return strings.Join(parts, "\n")
}

func extractTechMentions(history []TurnEntry) []string {
	window := history
	if len(window) > vocabularyWindow {
		window = window[len(window)-vocabularyWindow:]
	}

	var joined strings.Builder
	for _, turn := range window {
		joined.WriteString(strings.ToLower(turn.Text))
		joined.WriteByte(' ')
	}
	text := joined.String()

	var mentions []string
	seen := make(map[string]struct{})
	for _, tech := range techVocabulary {
		if _, ok := seen[tech]; ok {
			continue
		}
		if strings.Contains(text, tech) {
			seen[tech] = struct{}{}
			mentions = append(mentions, tech)
		}
	}
	return mentions
}

func lastAssistantText(history []TurnEntry) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == "assistant" {
			return strings.TrimSpace(history[i].Text)
		}
	}
	return ""
}
