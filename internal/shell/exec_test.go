package shell

import (
	"strings"
	"testing"
	"time"
)

func TestSplitArgs(t *testing.T) {
	cases := []struct {
		input string
		want  []string
	}{
		{"ls -la", []string{"ls", "-la"}},
		{`grep -e "two words" file`, []string{"grep", "-e", "two words", "file"}},
		{`echo 'single quoted'`, []string{"echo", "single quoted"}},
		{"  spaced   out  ", []string{"spaced", "out"}},
		{"", nil},
	}
	for _, tc := range cases {
		got, err := SplitArgs(tc.input)
		if err != nil {
			t.Fatalf("SplitArgs(%q) failed: %v", tc.input, err)
		}
		if len(got) != len(tc.want) {
			t.Fatalf("SplitArgs(%q) = %v, want %v", tc.input, got, tc.want)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("SplitArgs(%q) = %v, want %v", tc.input, got, tc.want)
			}
		}
	}
}

func TestSplitArgsRejectsUnterminatedQuote(t *testing.T) {
	if _, err := SplitArgs(`echo "oops`); err == nil {
		t.Fatal("expected error for unterminated quote")
	}
}

func TestChdir(t *testing.T) {
	runner := NewRunner(time.Second)
	dir := t.TempDir()

	if err := runner.Chdir(dir); err != nil {
		t.Fatalf("Chdir failed: %v", err)
	}
	if runner.WorkDir() != dir {
		t.Fatalf("work dir not updated: %s", runner.WorkDir())
	}

	if err := runner.Chdir(dir + "/missing"); err == nil {
		t.Fatal("expected error for missing directory")
	}
	if runner.WorkDir() != dir {
		t.Fatal("failed Chdir must not change the work dir")
	}
}

func TestExpandHomeTokenLeadingOnly(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cases := []struct {
		input string
		want  string
	}{
		{"ls ~/docs", "ls " + home + "/docs"},
		{"cd ~", "cd " + home},
		{"tar -cf backup.tar ~/notes", "tar -cf backup.tar " + home + "/notes"},
		{`grep "a~b" notes.txt`, `grep "a~b" notes.txt`},
		{"rsync a~b dest", "rsync a~b dest"},
	}
	for _, tc := range cases {
		if got := expandHome(tc.input); got != tc.want {
			t.Fatalf("expandHome(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestRedactText(t *testing.T) {
	cases := []struct {
		input string
		leak  string
	}{
		{"export API_KEY=supersecret", "supersecret"},
		{"login --password hunter2", "hunter2"},
		{"Authorization: Bearer abc.def.ghi", "abc.def.ghi"},
		{"--access-key=AKIA123", "AKIA123"},
	}
	for _, tc := range cases {
		got := RedactText(tc.input)
		if strings.Contains(got, tc.leak) {
			t.Fatalf("RedactText(%q) leaked secret: %q", tc.input, got)
		}
		if !strings.Contains(got, "<redacted>") {
			t.Fatalf("RedactText(%q) produced no redaction marker: %q", tc.input, got)
		}
	}
}

func TestRedactTextLeavesPlainCommands(t *testing.T) {
	input := "ls -la $HOME/Downloads"
	if got := RedactText(input); got != input {
		t.Fatalf("plain command altered: %q", got)
	}
}
