package terminal

import (
	"bytes"
	"strings"
	"testing"
)

func TestConfirm(t *testing.T) {
	tests := []struct {
		input      string
		defaultYes bool
		want       bool
	}{
		{"y\n", false, true},
		{"YES\n", false, true},
		{"n\n", true, false},
		{"\n", true, true},
		{"\n", false, false},
		{"maybe\n", true, false},
		{"y", false, true}, // no trailing newline
	}

	for _, tt := range tests {
		var out bytes.Buffer
		p := New(strings.NewReader(tt.input), &out, true)
		got, err := p.Confirm("Stop it?", tt.defaultYes)
		if err != nil {
			t.Fatalf("Confirm(%q): %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("Confirm(%q, %v) = %v, want %v", tt.input, tt.defaultYes, got, tt.want)
		}
		if !strings.HasPrefix(out.String(), "Stop it? [") {
			t.Errorf("prompt not printed: %q", out.String())
		}
	}
}

func TestConfirmEOF(t *testing.T) {
	p := New(strings.NewReader(""), &bytes.Buffer{}, true)
	if _, err := p.Confirm("Stop it?", true); err == nil {
		t.Error("expected error on closed input")
	}
}

func TestNotInteractiveUsesDefaults(t *testing.T) {
	var out bytes.Buffer
	p := New(strings.NewReader("n\n"), &out, false)

	ok, err := p.Confirm("Stop it?", true)
	if err != nil || !ok {
		t.Errorf("Confirm = %v, %v; want default true", ok, err)
	}
	choice, err := p.Choose("Orphans?", []string{"adopt", "terminate", "leave"}, "leave")
	if err != nil || choice != "leave" {
		t.Errorf("Choose = %q, %v; want leave", choice, err)
	}
	if out.Len() != 0 {
		t.Errorf("non-interactive prompter printed %q", out.String())
	}
}

func TestChoose(t *testing.T) {
	choices := []string{"adopt", "terminate", "leave"}

	tests := []struct {
		input string
		want  string
	}{
		{"adopt\n", "adopt"},
		{"t\n", "terminate"},
		{"\n", "leave"},
		{"x\nA\n", "adopt"},
	}

	for _, tt := range tests {
		var out bytes.Buffer
		p := New(strings.NewReader(tt.input), &out, true)
		got, err := p.Choose("Orphans?", choices, "leave")
		if err != nil {
			t.Fatalf("Choose(%q): %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("Choose(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}

	var out bytes.Buffer
	p := New(strings.NewReader("x\n\n"), &out, true)
	if _, err := p.Choose("Orphans?", choices, "leave"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "Please answer one of: adopt, terminate, leave") {
		t.Errorf("unknown answer not reported: %q", out.String())
	}
}
