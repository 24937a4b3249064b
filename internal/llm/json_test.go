package llm

import (
	"errors"
	"testing"
)

func TestParseJSONResponsePlain(t *testing.T) {
	result := ParseJSONResponse(`{"key": "value", "num": 42}`)
	if result == nil {
		t.Fatal("expected non-nil result")
	}
	if result["key"] != "value" {
		t.Errorf("expected key='value', got %v", result["key"])
	}
	if result["num"] != float64(42) {
		t.Errorf("expected num=42, got %v", result["num"])
	}
}

func TestParseJSONResponseWithCodeFence(t *testing.T) {
	for _, text := range []string{
		"```json\n{\"key\": \"value\"}\n```",
		"```\n{\"key\": \"value\"}\n```",
		"  \n  {\"key\": \"value\"}  \n  ",
	} {
		result := ParseJSONResponse(text)
		if result == nil {
			t.Fatalf("expected non-nil result for %q", text)
		}
		if result["key"] != "value" {
			t.Errorf("expected key='value', got %v", result["key"])
		}
	}
}

func TestDecodeJSONSingleLineFence(t *testing.T) {
	for _, text := range []string{
		"```json {\"a\": 1}```",
		"```json{\"a\": 1}```",
		"```{\"a\": 1}```",
		"``` {\"a\": 1} ```",
	} {
		var v map[string]any
		if err := DecodeJSON(text, &v); err != nil {
			t.Fatalf("DecodeJSON(%q) failed: %v", text, err)
		}
		if v["a"] != float64(1) {
			t.Errorf("DecodeJSON(%q): expected a=1, got %v", text, v["a"])
		}
	}
}

func TestStripFencesSingleLine(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"```json [1, 2]```", "[1, 2]"},
		{"```true```", "true"},
		{"```", ""},
	}
	for _, tt := range tests {
		if got := StripFences(tt.in); got != tt.want {
			t.Errorf("StripFences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseJSONResponseInvalid(t *testing.T) {
	if result := ParseJSONResponse("not json at all"); result != nil {
		t.Error("expected nil for invalid JSON")
	}
	if result := ParseJSONResponse(""); result != nil {
		t.Error("expected nil for empty string")
	}
}

func TestParseJSONResponseTrailingCommentary(t *testing.T) {
	result := ParseJSONResponse("Here you go:\n{\"title\": \"Weekly {recap}\", \"n\": 3}\nLet me know if you need more.")
	if result == nil {
		t.Fatal("expected non-nil result")
	}
	if result["title"] != "Weekly {recap}" {
		t.Errorf("braces inside strings must not end the object, got %v", result["title"])
	}
}

func TestRepairJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"complete", `{"a":1}`, `{"a":1}`},
		{"unterminated string", `{"a":"hel`, `{"a":"hel"}`},
		{"open array", `{"items":["x","y"`, `{"items":["x","y"]}`},
		{"nested", `{"a":{"b":[1,2`, `{"a":{"b":[1,2]}}`},
		{"trailing comma", `{"a":[1,2,],}`, `{"a":[1,2]}`},
		{"truncated after comma", `{"a":1,`, `{"a":1}`},
		{"dangling colon", `{"a":`, `{"a":null}`},
		{"dangling key", `{"a":1,"b"`, `{"a":1,"b":null}`},
		{"escaped quote", `{"a":"say \"hi\"`, `{"a":"say \"hi\""}`},
		{"fenced truncated", "```json\n{\"a\":[1", `{"a":[1]}`},
		{"leading prose", `Result: {"a":1} done`, `{"a":1}`},
		{"no json", `nothing here`, `nothing here`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RepairJSON(tt.in); got != tt.want {
				t.Errorf("RepairJSON(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDecodeJSONTruncated(t *testing.T) {
	var out struct {
		Takeaways []string `json:"takeaways"`
	}
	if err := DecodeJSON("```json\n{\"takeaways\": [\"one\", \"two", &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Takeaways) != 2 || out.Takeaways[1] != "two" {
		t.Errorf("unexpected takeaways: %v", out.Takeaways)
	}
}

func TestDecodeJSONUnparseable(t *testing.T) {
	var out map[string]any
	err := DecodeJSON("I could not produce an answer.", &out)
	if !errors.Is(err, ErrUnparseable) {
		t.Fatalf("expected ErrUnparseable, got %v", err)
	}
}
