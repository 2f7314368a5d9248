// Package fallback produces deterministic template text for each intent when
// the remote agent cannot be used. Every function here is pure.
package fallback

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/fentz26/ntbk/internal/models"
)

// ErrUnsupportedIntent is returned when no template exists for an intent.
var ErrUnsupportedIntent = errors.New("no fallback template for intent")

const (
	// ExcerptLimit is the number of runes of source text quoted by Rewrite.
	ExcerptLimit = 200
	// topicLimit bounds topics derived from a prompt.
	topicLimit = 60

	untitledTopic   = "Untitled Section"
	priorityPrompt  = "Which of these areas should be completed first, and why?"
	genericQuestion = "Can you provide more details about the technical implementation?"
)

var listMarker = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s*`)

// questionPatterns rotate by gap position so consecutive questions read differently.
var questionPatterns = []string{
	"What specific details can you add about %s?",
	"What data, measurements, or results do you have for %s?",
	"What challenges did you encounter with %s, and how were they resolved?",
	"Are there diagrams or images that would help illustrate %s?",
}

// Questions returns one question per gap named in gapDescription plus a
// closing priority question. Gaps are separated by newlines, commas or semicolons.
func Questions(gapDescription string) []string {
	gaps := splitGaps(gapDescription)
	if len(gaps) == 0 {
		return []string{genericQuestion, priorityPrompt}
	}

	questions := make([]string, 0, len(gaps)+1)
	for i, gap := range gaps {
		questions = append(questions, fmt.Sprintf(questionPatterns[i%len(questionPatterns)], gap))
	}
	return append(questions, priorityPrompt)
}

// Draft returns a structured section skeleton specific to topic.
func Draft(topic, context string) string {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		topic = untitledTopic
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", topic)
	b.WriteString("## Overview\n")
	fmt.Fprintf(&b, "This section documents %s. [Summarize the purpose, scope and current status]\n\n", topic)

	if ctx := strings.TrimSpace(context); ctx != "" {
		b.WriteString("## Context\n")
		fmt.Fprintf(&b, "> %s\n\n", excerpt(collapseSpace(ctx), ExcerptLimit))
	}

	b.WriteString("## Key Points\n")
	fmt.Fprintf(&b, "- [Key specification or requirement for %s]\n", topic)
	b.WriteString("- [Design decision and its rationale]\n")
	b.WriteString("- [Test procedure and measured result]\n\n")

	b.WriteString("## Next Steps\n")
	b.WriteString("- [ ] [Next step 1]\n")
	b.WriteString("- [ ] [Next step 2]\n")
	b.WriteString("- [ ] [Next step 3]\n\n")

	b.WriteString("[TAG: engineering, documentation]\n")
	b.WriteString("[COMMENT: This is a template draft - please customize with specific details]\n")
	return b.String()
}

// Rewrite wraps a truncated excerpt of original in fixed improvement framing.
func Rewrite(original string) string {
	var b strings.Builder
	b.WriteString("# Improved Section\n\n")
	b.WriteString("## Original Excerpt\n")
	if text := collapseSpace(original); text != "" {
		fmt.Fprintf(&b, "> %s\n\n", excerpt(text, ExcerptLimit))
	} else {
		b.WriteString("> [No original content provided]\n\n")
	}

	b.WriteString("## Suggested Improvements\n")
	b.WriteString("- Clarity: state the goal of the section in the first sentence.\n")
	b.WriteString("- Structure: group related details under headings (overview, design, testing, results).\n")
	b.WriteString("- Technical rigor: add specifications, measurements and units where values are mentioned.\n")
	b.WriteString("- Evidence: reference supporting images or diagrams as [image N].\n\n")

	b.WriteString("[TAG: improved, technical]\n")
	b.WriteString("[COMMENT: Rewrite suggestions generated from a template - the AI service was unavailable]\n")
	return b.String()
}

// Generate renders the template for intent. topic is used by drafts; prompt
// supplies the gap description, draft context or text to rewrite.
func Generate(intent models.Intent, topic, prompt string) (string, error) {
	switch intent {
	case models.IntentQuestions:
		qs := Questions(prompt)
		var b strings.Builder
		for i, q := range qs {
			fmt.Fprintf(&b, "%d. %s\n", i+1, q)
		}
		return b.String(), nil
	case models.IntentDraft:
		if strings.TrimSpace(topic) == "" {
			topic = TopicFrom(prompt)
		}
		return Draft(topic, prompt), nil
	case models.IntentRewrite:
		return Rewrite(prompt), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedIntent, intent)
	}
}

// InferIntent guesses an intent from prompt keywords, defaulting to draft.
func InferIntent(prompt string) models.Intent {
	words := strings.FieldsFunc(strings.ToLower(prompt), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	has := func(prefixes ...string) bool {
		for _, w := range words {
			for _, p := range prefixes {
				if strings.HasPrefix(w, p) {
					return true
				}
			}
		}
		return false
	}

	switch {
	case has("draft", "create"):
		return models.IntentDraft
	case has("rewrite", "improve"):
		return models.IntentRewrite
	case has("question", "ask"):
		return models.IntentQuestions
	default:
		return models.IntentDraft
	}
}

// TopicFrom derives a short heading from the first non-empty line of prompt.
func TopicFrom(prompt string) string {
	for _, line := range strings.Split(prompt, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		line = strings.TrimRight(line, ".:;!? ")
		return excerpt(line, topicLimit)
	}
	return untitledTopic
}

func splitGaps(desc string) []string {
	fields := strings.FieldsFunc(desc, func(r rune) bool {
		return r == '\n' || r == ',' || r == ';'
	})

	seen := make(map[string]bool, len(fields))
	gaps := make([]string, 0, len(fields))
	for _, f := range fields {
		g := listMarker.ReplaceAllString(f, "")
		g = strings.TrimSpace(strings.TrimRight(g, ".:!? "))
		if g == "" {
			continue
		}
		key := strings.ToLower(g)
		if seen[key] {
			continue
		}
		seen[key] = true
		gaps = append(gaps, g)
	}
	return gaps
}

func excerpt(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:limit])) + "..."
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
