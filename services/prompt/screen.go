package prompt

import (
	"regexp"

	"github.com/upb/llm-chat-gateway/models"
)

// FindingType names a class of instruction-like text found in retrieved content
type FindingType string

const (
	FindingInstructionOverride FindingType = "instruction_override"
	FindingRoleManipulation    FindingType = "role_manipulation"
	FindingPromptLeak          FindingType = "system_prompt_leak"
	FindingDelimiter           FindingType = "delimiter"
)

// Finding is one suspicious span in a retrieved document
type Finding struct {
	DocumentID string
	Type       FindingType
	Start      int
	End        int
}

type screenRule struct {
	kind     FindingType
	patterns []*regexp.Regexp
}

// Knowledge base content is spliced into the system message verbatim, so
// text that reads like an instruction to the model is worth surfacing.
var screenRules = []screenRule{
	{FindingInstructionOverride, []*regexp.Regexp{
		regexp.MustCompile(`(?i)(ignore|disregard)\s+(all\s+|any\s+)?(previous|above|prior)\s+(instructions?|prompts?|rules)`),
		regexp.MustCompile(`(?i)override\s+(all|previous|system)\s+(instructions?|rules|settings?)`),
		regexp.MustCompile(`(?i)forget\s+(everything|all\s+previous)`),
	}},
	{FindingRoleManipulation, []*regexp.Regexp{
		regexp.MustCompile(`(?i)from\s+now\s+on[,]?\s+(you|your)\s+(are|will)`),
		regexp.MustCompile(`(?i)assume\s+(the\s+)?(role|identity)\s+of`),
		regexp.MustCompile(`(?i)pretend\s+(to\s+)?be\s+(a|an)\b`),
	}},
	{FindingPromptLeak, []*regexp.Regexp{
		regexp.MustCompile(`(?i)(reveal|print|repeat|show)\s+(me\s+)?(your|the)\s+(system|hidden|original)\s+(prompt|instructions?)`),
	}},
	{FindingDelimiter, []*regexp.Regexp{
		regexp.MustCompile(`(\[/?(SYSTEM|USER|ASSISTANT)\])`),
		regexp.MustCompile(`(<\|(system|user|assistant|end)\|>)`),
		regexp.MustCompile(`(###\s*(SYSTEM|USER|ASSISTANT|INSTRUCTION))`),
	}},
}

// Screen reports instruction-like spans in docs. It never alters them; the
// caller decides what to do with the findings.
func Screen(docs []*models.Document) []Finding {
	var findings []Finding
	for _, doc := range docs {
		for _, rule := range screenRules {
			for _, re := range rule.patterns {
				for _, m := range re.FindAllStringIndex(doc.Content, -1) {
					findings = append(findings, Finding{
						DocumentID: doc.ID,
						Type:       rule.kind,
						Start:      m[0],
						End:        m[1],
					})
				}
			}
		}
	}
	return findings
}
