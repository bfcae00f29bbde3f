package ai

import "testing"

func TestSanitizeJSONPayload(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"clean", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"fenced no lang", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"prose wrapped", `Here you go: {"a":1} hope that helps`, `{"a":1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := sanitizeJSONPayload(tc.in); got != tc.want {
				t.Errorf("sanitizeJSONPayload(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	var out struct {
		Title string `json:"title"`
	}
	if err := DecodeJSON("```json\n{\"title\":\"ok\"}\n```", &out); err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
	if out.Title != "ok" {
		t.Errorf("title = %q", out.Title)
	}
	if err := DecodeJSON("   ", &out); err == nil {
		t.Error("expected error for empty payload")
	}
}
