package merge

import "strings"

// proseLeaders are conversational openings that mark an LLM response as
// prose rather than file content.
var proseLeaders = []string{
	"I ", "I'm", "I'll", "I've",
	"Here ", "Here's",
	"The conflict", "The merge",
	"Let me", "Sure", "Certainly", "Okay", "OK,",
	"Unfortunately", "Sorry", "Apologies",
	"To resolve", "Looking at", "Based on",
	"This file", "Note:",
}

// refusalPhrases mark a response as a refusal anywhere in the body.
var refusalPhrases = []string{
	"I need permission",
	"I cannot",
	"I can't",
	"I don't have",
	"I am not able",
	"I'm not able",
}

// IsProse reports whether an LLM response looks like prose instead of raw
// resolved file content. Empty output, conversational leaders, markdown code
// fences, and refusal phrasing all count as prose.
func IsProse(output string) bool {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return true
	}

	for _, leader := range proseLeaders {
		if strings.HasPrefix(trimmed, leader) {
			return true
		}
	}

	for _, line := range strings.Split(output, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			return true
		}
	}

	for _, phrase := range refusalPhrases {
		if strings.Contains(output, phrase) {
			return true
		}
	}
	return false
}
