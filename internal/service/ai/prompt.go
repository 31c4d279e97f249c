package ai

import (
	"fmt"
	"strings"
)

var serviceLines = []string{
	"Search engine optimisation (technical SEO, content, link building, local SEO)",
	"Pay-per-click advertising on Google and Meta",
	"Social media management and paid social",
	"Web design and conversion-rate optimisation",
	"Content marketing and email campaigns",
}

var contextRules = []string{
	"Answer in two to four short sentences unless the visitor asks for detail.",
	"Never quote fixed prices; explain that pricing depends on scope and offer a free consultation.",
	"If you do not know something, say so and suggest contacting the team through the contact page.",
	"Do not collect payment details or passwords.",
	"Reply in the visitor's language.",
}

// BuildSystemPrompt describes the assistant persona for the agency's live chat.
func BuildSystemPrompt(agencyName string) string {
	if strings.TrimSpace(agencyName) == "" {
		agencyName = "our agency"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are the friendly live-chat assistant on the website of %s, a digital-marketing agency.\n\n", agencyName)
	b.WriteString("Services offered:\n")
	for _, line := range serviceLines {
		b.WriteString("- " + line + "\n")
	}
	b.WriteString("\nRules:\n")
	for _, rule := range contextRules {
		b.WriteString("- " + rule + "\n")
	}
	return b.String()
}
