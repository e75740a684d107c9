package synthesis

import (
	"encoding/json"
	"testing"
)

func TestSanitizeTrailingCommas(t *testing.T) {
	raw := `{"executive_summary":"text","key_findings":[1,2,],}`
	got := Sanitize(raw)

	var v map[string]any
	if err := json.Unmarshal([]byte(got), &v); err != nil {
		t.Fatalf("sanitized output does not parse: %v\n%s", err, got)
	}
}

func TestSanitizeInvalidEscapes(t *testing.T) {
	raw := `{"text":"a \x odd \q escape","ok":"line\nbreak"}`
	got := Sanitize(raw)

	var v struct {
		Text string `json:"text"`
		OK   string `json:"ok"`
	}
	if err := json.Unmarshal([]byte(got), &v); err != nil {
		t.Fatalf("sanitized output does not parse: %v\n%s", err, got)
	}
	if v.Text != "a x odd q escape" {
		t.Errorf("Text = %q, want invalid escapes dropped", v.Text)
	}
	if v.OK != "line\nbreak" {
		t.Errorf("OK = %q, want legal escape preserved", v.OK)
	}
}

func TestSanitizeNewlinesInsideStrings(t *testing.T) {
	raw := "{\"text\":\"first\nsecond\"}"
	got := Sanitize(raw)

	var v struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(got), &v); err != nil {
		t.Fatalf("sanitized output does not parse: %v\n%s", err, got)
	}
	if v.Text != "first second" {
		t.Errorf("Text = %q, want raw newline collapsed to space", v.Text)
	}
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"no fence", `{"a":1}`, `{"a":1}`},
		{"whitespace", "  {\"a\":1}  ", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripFences(tt.in); got != tt.want {
				t.Errorf("StripFences = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSanitizePreservesCommasInsideStrings(t *testing.T) {
	raw := `{"text":"a, b, c","list":[1, 2]}`
	got := Sanitize(raw)
	if got != raw {
		t.Errorf("Sanitize changed valid JSON:\n got %s\nwant %s", got, raw)
	}
}
