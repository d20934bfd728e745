package main

import "testing"

func TestCommandTreeParsesArgs(t *testing.T) {
	cases := [][]string{
		{"node", "create", "n1"},
		{"node", "start", "n1"},
		{"node", "stop", "n1"},
		{"node", "list"},
		{"publish", "n1", "/tmp/f.txt"},
		{"download", "n1", "abc123"},
		{"providers", "n1", "abc123"},
		{"dial", "n1", "Qm...", "/ip4/1.2.3.4/tcp/4001"},
		{"delete", "n1", "abc123"},
		{"peer-id", "n1"},
	}

	for _, args := range cases {
		root := newRootCmd()
		root.SetArgs(args)
		cmd, flagArgs, err := root.Find(args)
		if err != nil {
			t.Fatalf("Find(%v) failed: %v", args, err)
		}
		if err := cmd.ValidateArgs(flagArgs); err != nil {
			t.Fatalf("args %v: unexpected validation error: %v", args, err)
		}
	}
}

func TestNodeCreateRejectsMissingName(t *testing.T) {
	root := newRootCmd()
	cmd, _, err := root.Find([]string{"node", "create"})
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if err := cmd.Args(cmd, nil); err == nil {
		t.Fatal("expected an error validating zero args against ExactArgs(1)")
	}
}
