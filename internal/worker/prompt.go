package worker

import (
	"regexp"
	"strings"

	"github.com/harshit-ig/startup-genie/internal/domain"
	"github.com/harshit-ig/startup-genie/internal/llm"
)

const systemPrompt = `You are a professional business AI assistant that responds to two types of requests: business plan generation and mentorship guidance. Your primary goal is to provide valuable, actionable business advice.

Always prioritize the specific formatting instructions included in each user request. The requests will contain detailed templates that you should follow precisely.

For business plans, ensure all financial projections are realistic and well-reasoned. Include exact numbers with proper formatting for metrics.

For mentorship, provide practical, actionable advice that addresses the specific business challenges presented.

Maintain a professional tone, be concise, and focus on delivering maximum value with each response.
`

var controlMarkers = regexp.MustCompile(`(<\|user\|>|</?think>|</?im_end>|User:)`)

// stopSequences cortan la generacion si el modelo las emite.
var stopSequences = []string{"<|im_end|>", "<|user|>"}

// CleanMessage quita marcadores de plantilla de chat que no deben llegar al modelo.
func CleanMessage(msg string) string {
	return strings.TrimSpace(controlMarkers.ReplaceAllString(msg, ""))
}

func containsStopSequence(s string) bool {
	for _, stop := range stopSequences {
		if strings.Contains(s, stop) {
			return true
		}
	}
	return false
}

// buildMessages arma system + contexto reciente + mensaje actual.
func buildMessages(recent []domain.ChatMessage, message string) []llm.Message {
	out := make([]llm.Message, 0, len(recent)+2)
	out = append(out, llm.Message{Role: domain.RoleSystem, Content: systemPrompt})
	for _, m := range recent {
		out = append(out, llm.Message{Role: m.Role, Content: m.Content})
	}
	return append(out, llm.Message{Role: domain.RoleUser, Content: message})
}
