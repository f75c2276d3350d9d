package sling

import (
	"reflect"
	"testing"
)

func TestInferDomains(t *testing.T) {
	tests := []struct {
		name     string
		files    []string
		fallback []string
		want     []string
	}{
		{
			name:  "mapped prefixes",
			files: []string{"src/commands/sling.ts", "src/mail/store.ts"},
			want:  []string{"cli", "messaging"},
		},
		{
			name:  "merge and worktree share a domain",
			files: []string{"src/merge/resolver.ts", "src/worktree/manager.ts"},
			want:  []string{"architecture"},
		},
		{
			name:  "other source files",
			files: []string{"src/util/time.ts"},
			want:  []string{"core"},
		},
		{
			name:  "duplicates collapse and sort",
			files: []string{"src/mail/a.ts", "src/mail/b.ts", "src/agents/spawn.ts"},
			want:  []string{"agents", "messaging"},
		},
		{
			name:     "non-source files fall back",
			files:    []string{"README.md", "docs/plan.md"},
			fallback: []string{"docs"},
			want:     []string{"docs"},
		},
		{
			name:     "empty input falls back",
			files:    nil,
			fallback: []string{"general"},
			want:     []string{"general"},
		},
		{
			name:  "empty input with no fallback",
			files: nil,
			want:  nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := InferDomains(tt.files, tt.fallback)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("InferDomains(%v) = %v, want %v", tt.files, got, tt.want)
			}
		})
	}
}
