package main

import (
	"testing"
)

func TestBuildRootSubcommands(t *testing.T) {
	root := buildRoot()
	want := map[string]bool{
		"up":     false,
		"down":   false,
		"status": false,
		"health": false,
		"urls":   false,
		"stats":  false,
		"serve":  false,
	}
	for _, c := range root.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Fatalf("missing subcommand %q", name)
		}
	}
}

func TestRootHasConfigFlag(t *testing.T) {
	root := buildRoot()
	if root.PersistentFlags().Lookup("config") == nil {
		t.Fatalf("missing persistent --config flag")
	}
	if root.PersistentFlags().Lookup("verbose") == nil {
		t.Fatalf("missing persistent --verbose flag")
	}
}

func TestQueryClientDefaults(t *testing.T) {
	c := command{global: &GlobalFlags{}}
	if c.apiClient(QueryFlags{}) == nil {
		t.Fatalf("expected client with default base URL")
	}
}
