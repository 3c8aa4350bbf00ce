package llmtext

import "testing"

func TestStripThinkBlocks(t *testing.T) {
	cases := []struct {
		name, in, want string
	}{
		{"no think block", `{"a":1}`, `{"a":1}`},
		{"single block", "<think>reasoning here</think>{\"a\":1}", `{"a":1}`},
		{"unterminated block", "<think>still thinking", ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := StripThinkBlocks(c.in); got != c.want {
				t.Fatalf("StripThinkBlocks(%q) = %q, want %q", c.in, got, c.want)
			}
		})
	}
}

func TestStripFences(t *testing.T) {
	in := "```json\n{\"a\":1}\n```"
	if got := StripFences(in); got != `{"a":1}` {
		t.Fatalf("StripFences() = %q", got)
	}
}

func TestStripFences_NoFence(t *testing.T) {
	in := `{"a":1}`
	if got := StripFences(in); got != in {
		t.Fatalf("StripFences() = %q, want unchanged", got)
	}
}

func TestExtractJSONObject_SurroundingProse(t *testing.T) {
	in := "Sure, here is the result:\n```json\n{\"match\":true,\"confidence\":0.9}\n```\nLet me know if that helps."
	want := `{"match":true,"confidence":0.9}`
	if got := ExtractJSONObject(in); got != want {
		t.Fatalf("ExtractJSONObject() = %q, want %q", got, want)
	}
}

func TestExtractJSONObject_NestedBraces(t *testing.T) {
	in := `prefix {"outer":{"inner":1}} suffix`
	want := `{"outer":{"inner":1}}`
	if got := ExtractJSONObject(in); got != want {
		t.Fatalf("ExtractJSONObject() = %q, want %q", got, want)
	}
}

func TestExtractJSONObject_BraceInsideString(t *testing.T) {
	in := `{"text":"a } b"}`
	if got := ExtractJSONObject(in); got != in {
		t.Fatalf("ExtractJSONObject() = %q, want %q", got, in)
	}
}

func TestExtractJSONObject_NoObject(t *testing.T) {
	if got := ExtractJSONObject("no json here"); got != "" {
		t.Fatalf("ExtractJSONObject() = %q, want empty", got)
	}
}
