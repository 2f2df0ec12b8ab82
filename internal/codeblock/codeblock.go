// Package codeblock pulls fenced code out of a model's free-text answer.
package codeblock

import (
	"regexp"
	"strings"

	"codemcp/internal/model"
)

const fence = "```"

// infoString matches the optional language tag that may follow an opening
// fence on the same line.
var infoString = regexp.MustCompile(`^[A-Za-z0-9_+#.\-]*$`)

// Blocks returns the trimmed inner content of every complete fenced block in
// text, in order of appearance. An opening fence without a closing one ends
// the scan.
func Blocks(text string) []string {
	var blocks []string
	pos := 0
	for {
		open := strings.Index(text[pos:], fence)
		if open < 0 {
			break
		}
		start := pos + open + len(fence)
		end := strings.Index(text[start:], fence)
		if end < 0 {
			break
		}
		blocks = append(blocks, strings.TrimSpace(stripInfoString(text[start:start+end])))
		pos = start + end + len(fence)
	}
	return blocks
}

func stripInfoString(inner string) string {
	nl := strings.IndexByte(inner, '\n')
	if nl < 0 {
		return inner
	}
	if infoString.MatchString(strings.TrimSpace(inner[:nl])) {
		return inner[nl+1:]
	}
	return inner
}

// Extract joins the fenced blocks of text with a blank line. Text without a
// complete fenced block is returned unchanged.
func Extract(text string) string {
	blocks := Blocks(text)
	if len(blocks) == 0 {
		return text
	}
	return strings.Join(blocks, "\n\n")
}

// FromResponse extracts code from the first choice of resp.
func FromResponse(resp *model.CompletionResponse) (string, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return "", model.NewError(model.KindEmptyCompletion, "completion returned no choices")
	}
	msg := resp.Choices[0].Message
	if msg == nil {
		return "", model.NewError(model.KindEmptyCompletion, "first choice has no message")
	}
	return Extract(msg.Content), nil
}
