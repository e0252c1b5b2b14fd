package main

import "testing"

func TestRootRegistersSubcommands(t *testing.T) {
	root := rootCmd()
	for _, path := range [][]string{
		{"migrate", "up"},
		{"migrate", "down"},
		{"migrate", "status"},
		{"reconcile-tokens"},
		{"recompute-stats"},
		{"expire-hotspots"},
	} {
		cmd, _, err := root.Find(path)
		if err != nil || cmd == root {
			t.Errorf("subcommand %v not registered: %v", path, err)
		}
	}
}

func TestReconcileFlags(t *testing.T) {
	cmd := reconcileTokensCmd()
	if cmd.Flags().Lookup("collector") == nil || cmd.Flags().Lookup("json") == nil {
		t.Fatal("expected --collector and --json flags")
	}
}
