package main

import (
	"bytes"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSendCommand(t *testing.T) {
	t.Run("user message", func(t *testing.T) {
		out, err := run(t, "send", "--users", "alice,bob,carol", "--from", "alice", "--to", "bob,carol", "--title", "Hi")
		if err != nil {
			t.Fatalf("send failed: %v", err)
		}
		lines := strings.Split(strings.TrimSpace(out), "\n")
		if len(lines) != 2 {
			t.Fatalf("expected two deliveries, got %q", out)
		}
		if !strings.HasSuffix(lines[0], "\tbob") || !strings.HasSuffix(lines[1], "\tcarol") {
			t.Errorf("unexpected output %q", out)
		}
	})

	t.Run("system message", func(t *testing.T) {
		out, err := run(t, "send", "--users", "bob", "--to", "bob", "--title", "Maintenance")
		if err != nil {
			t.Fatalf("send failed: %v", err)
		}
		if !strings.HasSuffix(strings.TrimSpace(out), "\tbob") {
			t.Errorf("unexpected output %q", out)
		}
	})

	t.Run("unknown recipient", func(t *testing.T) {
		if _, err := run(t, "send", "--users", "alice", "--from", "alice", "--to", "zed", "--title", "Hi"); err == nil {
			t.Error("expected error for unknown recipient")
		}
	})

	t.Run("missing required flag", func(t *testing.T) {
		if _, err := run(t, "send", "--users", "alice,bob", "--from", "alice", "--to", "bob"); err == nil {
			t.Error("expected error without --title")
		}
	})
}

func TestRecipientsCommand(t *testing.T) {
	out, err := run(t, "recipients", "--users", "alice,bob,carol", "--user", "alice")
	if err != nil {
		t.Fatalf("recipients failed: %v", err)
	}
	got := strings.Fields(out)
	if !slices.Equal(got, []string{"bob", "carol"}) {
		t.Errorf("expected [bob carol], got %v", got)
	}
}

func TestIgnoreCommand(t *testing.T) {
	out, err := run(t, "ignore", "--users", "alice,bob,carol", "--user", "alice", "bob", "carol", "bob")
	if err != nil {
		t.Fatalf("ignore failed: %v", err)
	}
	got := strings.Fields(out)
	slices.Sort(got)
	if !slices.Equal(got, []string{"bob", "carol"}) {
		t.Errorf("expected [bob carol], got %v", got)
	}
}

func TestInboxAndSummaryCommands(t *testing.T) {
	out, err := run(t, "inbox", "--users", "bob", "--user", "bob")
	if err != nil {
		t.Fatalf("inbox failed: %v", err)
	}
	if !strings.Contains(out, "0 of 0") {
		t.Errorf("expected empty inbox, got %q", out)
	}

	out, err = run(t, "summary", "--users", "bob", "--user", "bob")
	if err != nil {
		t.Fatalf("summary failed: %v", err)
	}
	if !strings.HasPrefix(out, "unread: 0") {
		t.Errorf("unexpected summary %q", out)
	}
}

func TestMigrateCommand(t *testing.T) {
	out, err := run(t, "migrate")
	if err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	if !strings.Contains(out, "memory store is ready") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestConfiguration(t *testing.T) {
	t.Run("unknown driver", func(t *testing.T) {
		if _, err := run(t, "migrate", "--driver", "sqlite"); err == nil || !strings.Contains(err.Error(), "sqlite") {
			t.Errorf("expected unknown driver error, got %v", err)
		}
	})

	t.Run("postgres needs a dsn", func(t *testing.T) {
		if _, err := run(t, "migrate", "--driver", "postgres"); err == nil {
			t.Error("expected error without --dsn")
		}
	})

	t.Run("environment overrides defaults", func(t *testing.T) {
		t.Setenv("PRIVMSG_USERS", "alice,bob")
		out, err := run(t, "recipients", "--user", "alice")
		if err != nil {
			t.Fatalf("recipients failed: %v", err)
		}
		if strings.TrimSpace(out) != "bob" {
			t.Errorf("expected bob, got %q", out)
		}
	})

	t.Run("config file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "privmsg.yaml")
		if err := os.WriteFile(path, []byte("users: alice,carol\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		out, err := run(t, "recipients", "--config", path, "--user", "carol")
		if err != nil {
			t.Fatalf("recipients failed: %v", err)
		}
		if strings.TrimSpace(out) != "alice" {
			t.Errorf("expected alice, got %q", out)
		}
	})

	t.Run("invalid log level", func(t *testing.T) {
		if _, err := run(t, "migrate", "--log-level", "loud"); err == nil {
			t.Error("expected invalid log level error")
		}
	})
}

func TestSplitList(t *testing.T) {
	if got := splitList(" a, ,b,"); !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("unexpected split %v", got)
	}
	if got := splitList(""); len(got) != 0 {
		t.Errorf("expected empty, got %v", got)
	}
}
