package shell

import "testing"

func testGate() *Gate {
	return NewGate([]string{
		"ls", "cd", "pwd", "echo", "cat", "date", "df", "ps", "find", "grep",
		"pacman", "systemctl", "free", "reboot",
	})
}

func TestGateSoundness(t *testing.T) {
	gate := testGate()
	unsafe := []string{
		"ls; rm -rf ~",
		"ls && reboot",
		"cat /etc/passwd || true",
		"echo `whoami`",
		"echo $(id)",
		"cat secrets > /tmp/out",
		"cat < /etc/shadow",
		"ps aux | grep ssh",
		"ls\nrm -rf /",
	}
	for _, command := range unsafe {
		verdict := gate.Check(command)
		if verdict.Allowed {
			t.Fatalf("gate allowed unsafe command %q", command)
		}
		if verdict.Reason == "" {
			t.Fatalf("rejection of %q carries no reason", command)
		}
	}
}

func TestGateAllowList(t *testing.T) {
	gate := testGate()

	cases := []struct {
		command string
		allowed bool
	}{
		{"ls -la", true},
		{"df -h", true},
		{"sudo pacman -Syu", true},
		{"rm -rf / ; reboot", false},
		{"rm -rf /", false},
		{"curl http://example.com", false},
		{"", false},
		{"   ", false},
	}
	for _, tc := range cases {
		if got := gate.Check(tc.command).Allowed; got != tc.allowed {
			t.Fatalf("Check(%q).Allowed = %v, want %v", tc.command, got, tc.allowed)
		}
	}
}

func TestGateOperatorBeatsAllowList(t *testing.T) {
	// Allow-listed head token does not rescue a chained command.
	verdict := testGate().Check("ls -la && rm -rf ~")
	if verdict.Allowed {
		t.Fatal("operator hit must be fatal even for an allow-listed program")
	}
}
