package main

import (
	"context"
	"testing"
)

func TestViperEnvOverridesDefaults(t *testing.T) {
	t.Setenv("QUIZDESK_MAX_SCORE", "20")
	t.Setenv("QUIZDESK_DB_DRIVER", "postgres")

	cmd := serveCmd()
	v := viperForCmd(cmd)
	if got := v.GetFloat64("max-score"); got != 20 {
		t.Errorf("max-score = %v, want 20", got)
	}
	if got := v.GetString("db-driver"); got != "postgres" {
		t.Errorf("db-driver = %q, want postgres", got)
	}
	if got := v.GetString("addr"); got != ":8080" {
		t.Errorf("addr = %q, want default :8080", got)
	}
}

func TestOpenStore(t *testing.T) {
	cmd := serveCmd()
	if err := cmd.Flags().Set("db", ":memory:"); err != nil {
		t.Fatal(err)
	}
	v := viperForCmd(cmd)

	st, err := openStore(context.Background(), v)
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	defer st.Close()
	if err := st.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}

	v.Set("db-driver", "cassandra")
	if _, err := openStore(context.Background(), v); err == nil {
		t.Error("expected error for unknown driver")
	}
}

func TestRootRegistersCommands(t *testing.T) {
	root := rootCmd()
	for _, name := range []string{"serve", "export", "import", "useradd"} {
		if c, _, err := root.Find([]string{name}); err != nil || c.Name() != name {
			t.Errorf("command %q not registered", name)
		}
	}
	if root.Flags().Lookup("jwt-secret") == nil {
		t.Error("serve flags should be available on the root command")
	}
}
