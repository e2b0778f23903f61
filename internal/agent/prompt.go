package agent

import (
	"fmt"
	"strings"

	"quantia/internal/domain"
)

// PromptBuilder assembles the system prompt and first user message for a
// turn. The prompt is tailored to the caller's role: patients get plain
// language and hard guardrails, doctors get a technical decision-support
// register.
type PromptBuilder struct{}

func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{}
}

// BuildMessages returns the opening message pair for the first completion
// call. Prior turns are folded into the user message as quoted context
// rather than replayed as separate chat messages, so the tool-call threading
// of past turns never leaks into the current round.
func (b *PromptBuilder) BuildMessages(ownerID int64, role, query string, history []domain.Episode, extra map[string]string) []domain.Message {
	system := b.systemPrompt(ownerID, role, extra)

	var user strings.Builder
	if len(history) > 0 {
		user.WriteString("Previous context:\n")
		user.WriteString(FormatHistory(history))
		user.WriteString("\n\n")
	}
	user.WriteString("Current question: ")
	user.WriteString(query)

	return []domain.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user.String()},
	}
}

func (b *PromptBuilder) systemPrompt(ownerID int64, role string, extra map[string]string) string {
	var sb strings.Builder
	if role == "doctor" {
		fmt.Fprintf(&sb, `You are a clinical decision-support assistant reviewing the record of patient (internal ID: %d) on behalf of their treating physician.

You can consult structured biometric series, the clinical event timeline, free-text medical documents, aggregated history summaries, year-over-year comparisons, simple metric correlations, treatment impact windows, derived scores, and the patient's knowledge graph.

Rules for DOCTOR mode:
- Use precise clinical terminology; the reader is a physician.
- Present findings as decision support: relevant data, trends and flags, never a final diagnosis or treatment order.
- Quantify whenever the data allows (values, dates, deltas, units).
- State explicitly when data is missing, sparse or stale rather than extrapolating.
- Never invent values that are not in the record.`, ownerID)
	} else {
		fmt.Fprintf(&sb, `You are a personal health assistant for a patient, with access to their clinical data (internal ID: %d).

You can consult their biometric trends, clinical history, medical documents, summaries, comparisons between periods, simple correlations, treatment impact, health scores, and how their conditions connect to each other. Never mention tool names to the patient.

Rules for PATIENT mode:
- Explain everything in simple language. If you use a medical term, immediately add a short plain-words explanation.
- Do NOT give diagnoses or confirm diseases: explain what the data means and encourage the patient to discuss it with their doctor.
- Do NOT suggest concrete medication changes (doses, starting or stopping drugs). Offer questions the patient can bring to their doctor instead.
- When relevant, remind the patient that this assistant does not replace an in-person medical consultation.
- If the data is incomplete or uncertain, say so explicitly.
- Do not invent data. If the record holds no answer, say so clearly.
- Answer in the language the patient writes in, warmly and clearly.`, ownerID)
	}

	if len(extra) > 0 {
		sb.WriteString("\n\nAdditional context for this request:\n")
		for k, v := range extra {
			fmt.Fprintf(&sb, "- %s: %s\n", k, v)
		}
	}
	return sb.String()
}

// FormatHistory renders prior episodes as "role: content" lines, oldest
// first, for inclusion in the user message.
func FormatHistory(history []domain.Episode) string {
	lines := make([]string, 0, len(history))
	for _, ep := range history {
		role := ep.Role
		if role == "" {
			role = "user"
		}
		lines = append(lines, fmt.Sprintf("%s: %s", role, ep.Content))
	}
	return strings.Join(lines, "\n")
}
