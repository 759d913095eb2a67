package util

import (
	"testing"
)

func TestContainsString(t *testing.T) {
	tests := []struct {
		name     string
		slice    []string
		item     string
		expected bool
	}{
		{
			name:     "item exists in slice",
			slice:    []string{"decomposer", "planner", "reviewer"},
			item:     "planner",
			expected: true,
		},
		{
			name:     "item does not exist in slice",
			slice:    []string{"decomposer", "planner"},
			item:     "executor",
			expected: false,
		},
		{
			name:     "empty slice",
			slice:    []string{},
			item:     "decomposer",
			expected: false,
		},
		{
			name:     "case sensitive match",
			slice:    []string{"Decomposer"},
			item:     "decomposer",
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ContainsString(tt.slice, tt.item)
			if result != tt.expected {
				t.Errorf("ContainsString(%v, %q) = %v, want %v", tt.slice, tt.item, result, tt.expected)
			}
		})
	}
}

func TestContainsAny(t *testing.T) {
	tests := []struct {
		name     string
		lowered  string
		subs     []string
		expected bool
	}{
		{
			name:     "first substring matches",
			lowered:  "build a payment service",
			subs:     []string{"build", "create"},
			expected: true,
		},
		{
			name:     "later substring matches",
			lowered:  "develop the importer",
			subs:     []string{"build", "create", "develop"},
			expected: true,
		},
		{
			name:     "substring inside a word",
			lowered:  "rebuild the index",
			subs:     []string{"build"},
			expected: true,
		},
		{
			name:     "no match",
			lowered:  "write documentation",
			subs:     []string{"deploy", "release"},
			expected: false,
		},
		{
			name:     "empty substring list",
			lowered:  "anything",
			subs:     nil,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ContainsAny(tt.lowered, tt.subs)
			if result != tt.expected {
				t.Errorf("ContainsAny(%q, %v) = %v, want %v", tt.lowered, tt.subs, result, tt.expected)
			}
		})
	}
}

func TestNormalizeWhitespace(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "already normalized",
			input:    "build a service",
			expected: "build a service",
		},
		{
			name:     "leading and trailing space",
			input:    "  build a service  ",
			expected: "build a service",
		},
		{
			name:     "internal runs",
			input:    "build   a\t\tservice",
			expected: "build a service",
		},
		{
			name:     "newlines collapse",
			input:    "build\na\nservice\n",
			expected: "build a service",
		},
		{
			name:     "whitespace only",
			input:    " \t\n ",
			expected: "",
		},
		{
			name:     "empty",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NormalizeWhitespace(tt.input)
			if result != tt.expected {
				t.Errorf("NormalizeWhitespace(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestTruncateString(t *testing.T) {
	tests := []struct {
		name          string
		input         string
		maxLen        int
		preserveWords bool
		expected      string
	}{
		{
			name:          "no truncation needed",
			input:         "short text",
			maxLen:        20,
			preserveWords: false,
			expected:      "short text",
		},
		{
			name:          "simple truncation",
			input:         "This is a long text that needs truncation",
			maxLen:        20,
			preserveWords: false,
			expected:      "This is a long te...",
		},
		{
			name:          "word-preserving truncation",
			input:         "This is a long text that needs truncation",
			maxLen:        20,
			preserveWords: true,
			expected:      "This is a long...",
		},
		{
			name:          "maxLen zero",
			input:         "any text",
			maxLen:        0,
			preserveWords: false,
			expected:      "",
		},
		{
			name:          "maxLen smaller than ellipsis",
			input:         "text",
			maxLen:        2,
			preserveWords: false,
			expected:      "..",
		},
		{
			name:          "exact length match",
			input:         "exact",
			maxLen:        5,
			preserveWords: false,
			expected:      "exact",
		},
		{
			name:          "preserve words but no space found",
			input:         "verylongtextwithoutspaces",
			maxLen:        15,
			preserveWords: true,
			expected:      "verylongtext...",
		},
		{
			name:          "empty string",
			input:         "",
			maxLen:        10,
			preserveWords: false,
			expected:      "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := TruncateString(tt.input, tt.maxLen, tt.preserveWords)
			if result != tt.expected {
				t.Errorf("TruncateString(%q, %d, %v) = %q, want %q", tt.input, tt.maxLen, tt.preserveWords, result, tt.expected)
			}
		})
	}
}

// TestTruncateString_NoByteCutting verifies multi-byte sequences are never split.
func TestTruncateString_NoByteCutting(t *testing.T) {
	inputs := []string{
		"构建支付服务并部署",
		"データベースを移行する",
		"Build 🚀 and ship 🚢 it",
	}

	for _, input := range inputs {
		for maxLen := 1; maxLen < len(input)+5; maxLen++ {
			result := TruncateString(input, maxLen, false)

			runes := []rune(result)
			if string(runes) != result {
				t.Errorf("TruncateString(%q, %d) produced invalid UTF-8: %q", input, maxLen, result)
			}
			if maxLen > 0 && len(runes) > maxLen {
				t.Errorf("TruncateString(%q, %d) length = %d runes, want <= %d", input, maxLen, len(runes), maxLen)
			}
		}
	}
}
