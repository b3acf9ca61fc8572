package summarize

import (
	"strings"
	"testing"
)

func TestParsePayloadCleanJSON(t *testing.T) {
	res := ParsePayload(`{"title": "Bridge repair", "agency": "DOT"}`)
	if res.Fixed || res.Partial || res.Fallback {
		t.Errorf("Clean parse should carry no repair markers: %+v", res)
	}
	if res.Data["title"] != "Bridge repair" {
		t.Errorf("Expected title, got %v", res.Data["title"])
	}
}

func TestParsePayloadFencedWithTrailingComma(t *testing.T) {
	payload := "```json\n{\"title\": \"IT services\", \"agency\": \"GSA\",}\n```"
	res := ParsePayload(payload)
	if !res.Fixed {
		t.Error("Expected Fixed marker after trailing-comma repair")
	}
	if res.Partial || res.Fallback {
		t.Errorf("Unexpected markers: %+v", res)
	}
	if res.Data["agency"] != "GSA" {
		t.Errorf("Expected agency GSA, got %v", res.Data["agency"])
	}
}

func TestParsePayloadUnclosedBraces(t *testing.T) {
	res := ParsePayload(`{"title": "Roadwork", "details": {"phase": "one"`)
	if !res.Fixed {
		t.Errorf("Expected Fixed after brace closing: %+v", res)
	}
	details, ok := res.Data["details"].(map[string]any)
	if !ok || details["phase"] != "one" {
		t.Errorf("Nested object not recovered: %v", res.Data)
	}
}

func TestParsePayloadSmartQuotes(t *testing.T) {
	res := ParsePayload("{“title”: “Janitorial services”}")
	if !res.Fixed {
		t.Errorf("Expected Fixed after smart-quote repair: %+v", res)
	}
	if res.Data["title"] != "Janitorial services" {
		t.Errorf("Got %v", res.Data["title"])
	}
}

func TestParsePayloadEmbeddedObject(t *testing.T) {
	res := ParsePayload(`Here is the analysis you asked for: {"summary": "5-year IDIQ"} hope it helps`)
	if !res.Partial {
		t.Errorf("Expected Partial for embedded object: %+v", res)
	}
	if res.Data["summary"] != "5-year IDIQ" {
		t.Errorf("Got %v", res.Data)
	}
}

func TestParsePayloadFallback(t *testing.T) {
	raw := "the model refused to answer in json entirely"
	res := ParsePayload(raw)
	if !res.Fallback {
		t.Fatalf("Expected Fallback: %+v", res)
	}
	if res.ParseError == "" {
		t.Error("Fallback must carry the original parse error")
	}
	if res.Data["raw_response"] != raw {
		t.Errorf("Fallback must preserve the raw text, got %v", res.Data["raw_response"])
	}
}

func TestParsePayloadFallbackTruncatesRaw(t *testing.T) {
	raw := "x" + strings.Repeat("y", 5000)
	res := ParsePayload(raw)
	if !res.Fallback {
		t.Fatalf("Expected Fallback: %+v", res)
	}
	if got := res.Data["raw_response"].(string); len(got) != 2000 {
		t.Errorf("Expected raw_response truncated to 2000 chars, got %d", len(got))
	}
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no fence", `{"a":1}`, `{"a":1}`},
		{"json tag", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounding whitespace", "  ```json\n{\"a\":1}\n```  ", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripFences(tt.in); got != tt.want {
				t.Errorf("StripFences(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRepairJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"trailing comma object", `{"a": 1,}`, `{"a": 1}`},
		{"trailing comma array", `{"a": [1, 2,]}`, `{"a": [1, 2]}`},
		{"unclosed", `{"a": [1, 2`, `{"a": [1, 2]}`},
		{"unterminated string", `{"a": "bc`, `{"a": "bc"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RepairJSON(tt.in); got != tt.want {
				t.Errorf("RepairJSON(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestLargestBalancedObject(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"prefix and suffix", `noise {"a":1} trailing`, `{"a":1}`},
		{"picks largest", `{"a":1} and {"b": {"c": 2}}`, `{"b": {"c": 2}}`},
		{"brace inside string ignored", `{"a": "}"}`, `{"a": "}"}`},
		{"none", `no object here`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := largestBalancedObject(tt.in); got != tt.want {
				t.Errorf("largestBalancedObject(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
