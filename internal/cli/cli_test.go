package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/Additional-Code/loom/internal/auth"
	"github.com/Additional-Code/loom/internal/config"
)

func TestRootCommandTree(t *testing.T) {
	root := NewRootCommand()
	for _, path := range [][]string{
		{"start"},
		{"migrate", "up"},
		{"migrate", "down"},
		{"migrate", "status"},
		{"seed"},
		{"worker", "run"},
		{"export", "samples"},
		{"token"},
	} {
		cmd, _, err := root.Find(path)
		if err != nil {
			t.Fatalf("find %v: %v", path, err)
		}
		if cmd.Name() != path[len(path)-1] {
			t.Fatalf("find %v resolved to %q", path, cmd.Name())
		}
	}
}

func TestTokenCommandSignsVerifiableToken(t *testing.T) {
	t.Setenv("AUTH_ENABLED", "true")
	t.Setenv("AUTH_JWT_SECRET", "cli-test-secret")
	t.Setenv("AUTH_JWT_ISSUER", "loom-test")

	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"token", "planner@loom.test", "--ttl", "5m"})
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("token command: %v", err)
	}

	cfg, err := config.New()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	sub, err := auth.NewVerifier(cfg).Subject(strings.TrimSpace(out.String()))
	if err != nil {
		t.Fatalf("verify issued token: %v", err)
	}
	if sub != "planner@loom.test" {
		t.Fatalf("subject = %q", sub)
	}
}
