// Package prompt turns a code task into the chat messages sent to the model.
package prompt

import (
	"strings"

	"codemcp/internal/model"
)

const fence = "```"

var systemPrompts = map[model.TaskKind]string{
	model.TaskComplete: "You are an expert programmer. Complete the code the user provides, " +
		"keeping its language, style and naming. Reply with the completed code in a single fenced code block.",
	model.TaskFix: "You are an expert programmer who specializes in finding and fixing bugs. " +
		"Identify the bugs in the code the user provides and reply with the corrected code in a fenced code block, " +
		"followed by a short list of the changes you made.",
	model.TaskTest: "You are an expert in software testing. Write thorough unit tests for the code the user provides, " +
		"covering normal cases, edge cases and error paths, using the idiomatic test framework for its language. " +
		"Reply with the tests in a fenced code block.",
	model.TaskFillInMiddle: "You are an expert programmer. Fill in the missing code so that it continues the code " +
		"the user provides and, when an ending is given, leads into that ending exactly. " +
		"Reply only with the code to insert, in a fenced code block.",
}

// SystemPrompt returns the persona instruction for kind. Unknown kinds fall
// back to the completion prompt.
func SystemPrompt(kind model.TaskKind) string {
	if p, ok := systemPrompts[kind]; ok {
		return p
	}
	return systemPrompts[model.TaskComplete]
}

// Build returns exactly two messages: the system prompt for kind followed by
// the user's code in a fenced block. For fill-in-the-middle tasks a non-empty
// suffix adds a second block describing the required ending. Empty code is
// passed through as is.
func Build(kind model.TaskKind, code, language, suffix string) []model.Message {
	var b strings.Builder
	writeBlock(&b, language, code)
	if kind == model.TaskFillInMiddle && suffix != "" {
		b.WriteString("\n\nThe code should end with:\n")
		writeBlock(&b, language, suffix)
	}

	return []model.Message{
		{Role: model.RoleSystem, Content: SystemPrompt(kind)},
		{Role: model.RoleUser, Content: b.String()},
	}
}

func writeBlock(b *strings.Builder, language, body string) {
	b.WriteString(fence)
	b.WriteString(strings.TrimSpace(language))
	b.WriteByte('\n')
	b.WriteString(body)
	b.WriteByte('\n')
	b.WriteString(fence)
}
