package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestMigratePrintsSchema(t *testing.T) {
	cmd := migrateCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--print"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("migrate --print: %v", err)
	}
	if !strings.Contains(out.String(), "appointments_no_overlap") {
		t.Fatalf("schema output missing exclusion constraint:\n%s", out.String())
	}
}

func TestCheckDeletableNeedsExactlyOneParty(t *testing.T) {
	for _, args := range [][]string{nil, {"--doctor", "d1", "--patient", "p1"}} {
		cmd := checkDeletableCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs(args)
		if err := cmd.Execute(); err == nil || !strings.Contains(err.Error(), "exactly one") {
			t.Fatalf("args %v: expected flag error, got %v", args, err)
		}
	}
}

func TestSlotsRejectsBadDate(t *testing.T) {
	cmd := slotsCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--doctor", "d1", "--date", "02/03/2026"})
	if err := cmd.Execute(); err == nil || !strings.Contains(err.Error(), "YYYY-MM-DD") {
		t.Fatalf("expected date error, got %v", err)
	}
}
