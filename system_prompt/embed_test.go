package systemprompt

import (
	"os"
	"strings"
	"testing"
)

func TestLoadConcatenatesPromptFiles(t *testing.T) {
	names, err := Names()
	if err != nil {
		t.Fatalf("Names() error: %v", err)
	}
	if len(names) == 0 {
		t.Fatal("expected at least one .txt file in system_prompt")
	}

	var parts []string
	for _, name := range names {
		data, err := os.ReadFile(name)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		parts = append(parts, strings.TrimRight(string(data), "\n"))
	}
	expected := strings.Join(parts, "\n\n") + "\n"

	prompt, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if prompt != expected {
		t.Fatalf("Load() output mismatch")
	}
}

func TestPromptMentionsSandboxRoot(t *testing.T) {
	prompt, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(prompt, "data/") {
		t.Fatal("prompt should tell the model where files live")
	}
}
