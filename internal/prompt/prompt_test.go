package prompt

import (
	"strings"
	"testing"

	"codemcp/internal/model"
)

func TestBuild_TwoMessagesSystemFirst(t *testing.T) {
	for _, kind := range model.TaskKinds {
		msgs := Build(kind, "x := 1", "go", "")
		if len(msgs) != 2 {
			t.Fatalf("%s: expected 2 messages, got %d", kind, len(msgs))
		}
		if msgs[0].Role != model.RoleSystem || msgs[1].Role != model.RoleUser {
			t.Fatalf("%s: unexpected roles %q, %q", kind, msgs[0].Role, msgs[1].Role)
		}
		if msgs[0].Content != SystemPrompt(kind) {
			t.Fatalf("%s: system prompt mismatch", kind)
		}
	}
}

func TestBuild_DistinctPersonas(t *testing.T) {
	seen := map[string]model.TaskKind{}
	for _, kind := range model.TaskKinds {
		p := SystemPrompt(kind)
		if other, dup := seen[p]; dup {
			t.Fatalf("%s and %s share a system prompt", kind, other)
		}
		seen[p] = kind
	}
}

func TestBuild_FixExample(t *testing.T) {
	msgs := Build(model.TaskFix, "def f(x): return x+", "python", "")
	if !strings.Contains(msgs[0].Content, "expert programmer") || !strings.Contains(msgs[0].Content, "bugs") {
		t.Fatalf("unexpected fix persona: %q", msgs[0].Content)
	}
	want := "```python\ndef f(x): return x+\n```"
	if msgs[1].Content != want {
		t.Fatalf("unexpected user content:\n got %q\nwant %q", msgs[1].Content, want)
	}
}

func TestBuild_MissingLanguageLeavesBareFence(t *testing.T) {
	msgs := Build(model.TaskComplete, "print(1)", "", "")
	if msgs[1].Content != "```\nprint(1)\n```" {
		t.Fatalf("unexpected user content: %q", msgs[1].Content)
	}
}

func TestBuild_FillInMiddleSuffix(t *testing.T) {
	with := Build(model.TaskFillInMiddle, "def add(a, b):", "python", "    return result")
	if got := strings.Count(with[1].Content, "```"); got != 4 {
		t.Fatalf("expected two fenced blocks, got %d fences in %q", got, with[1].Content)
	}
	if !strings.Contains(with[1].Content, "The code should end with:") {
		t.Fatalf("missing connective text: %q", with[1].Content)
	}

	without := Build(model.TaskFillInMiddle, "def add(a, b):", "python", "")
	if got := strings.Count(without[1].Content, "```"); got != 2 {
		t.Fatalf("expected one fenced block, got %d fences", got)
	}
}

func TestBuild_SuffixIgnoredOutsideFillInMiddle(t *testing.T) {
	msgs := Build(model.TaskComplete, "a", "", "b")
	if strings.Contains(msgs[1].Content, "should end with") {
		t.Fatalf("suffix leaked into a completion prompt: %q", msgs[1].Content)
	}
}

func TestBuild_EmptyCodePassesThrough(t *testing.T) {
	msgs := Build(model.TaskTest, "", "rust", "")
	if msgs[1].Content != "```rust\n\n```" {
		t.Fatalf("unexpected user content: %q", msgs[1].Content)
	}
}
