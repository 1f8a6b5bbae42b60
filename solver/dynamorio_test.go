package solver

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"b7/proc"
)

func TestMain(m *testing.M) {
	proc.BlockChildSignal()
	os.Exit(m.Run())
}

// fakeToolchain lays out a dynpath whose drrun is a shell script printing
// the given stdout, so the solver's spawn-and-parse path runs for real
// without a DynamoRIO build.
func fakeToolchain(t *testing.T, stdout string) string {
	t.Helper()
	dynpath := t.TempDir()

	binDir := filepath.Join(dynpath, "bin64")
	if err := os.MkdirAll(binDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dynpath, "api", "bin"), 0755); err != nil {
		t.Fatal(err)
	}

	script := fmt.Sprintf("#!/bin/sh\nprintf '%%s\\n' %q\n", stdout)
	if err := os.WriteFile(filepath.Join(binDir, "drrun"), []byte(script), 0755); err != nil {
		t.Fatal(err)
	}
	return dynpath
}

func TestGetInstCountParsesOutput(t *testing.T) {
	dynpath := fakeToolchain(t, "Instrumentation results: 4217 instructions executed")

	count, err := DynamorioSolver{}.GetInstCount(InstCountData{
		Path: "/bin/true",
		Vars: map[string]string{"dynpath": dynpath},
	})
	if err != nil {
		t.Fatalf("GetInstCount() error: %v", err)
	}
	if count != 4217 {
		t.Errorf("GetInstCount() = %d, want 4217", count)
	}
}

func TestGetInstCountParseFailure(t *testing.T) {
	dynpath := fakeToolchain(t, "no results here")

	_, err := DynamorioSolver{}.GetInstCount(InstCountData{
		Path: "/bin/true",
		Vars: map[string]string{"dynpath": dynpath},
	})
	var pe *proc.Error
	if !errors.As(err, &pe) || pe.Kind != proc.KindIO {
		t.Fatalf("GetInstCount() error = %v, want io kind", err)
	}
}

func TestGetInstCountMissingDynpath(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
	}{
		{"nil vars", nil},
		{"empty value", map[string]string{"dynpath": ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DynamorioSolver{}.GetInstCount(InstCountData{Path: "/bin/true", Vars: tt.vars})
			var pe *proc.Error
			if !errors.As(err, &pe) || pe.Kind != proc.KindMissingArgs {
				t.Errorf("GetInstCount() error = %v, want missing args kind", err)
			}
		})
	}
}

// TestParseFormatRoundTrip checks that parsing is a left inverse of the
// inscount client's output format across the count's full range.
func TestParseFormatRoundTrip(t *testing.T) {
	counts := []int64{0, 1, 42, 4217, 1<<31 - 1, 1 << 40, 1<<63 - 1}

	for _, n := range counts {
		out := fmt.Sprintf("Instrumentation results: %d instructions executed", n)
		got, err := parseInstCount([]byte(out))
		if err != nil {
			t.Errorf("parseInstCount(%d) error: %v", n, err)
			continue
		}
		if got != n {
			t.Errorf("parseInstCount round trip = %d, want %d", got, n)
		}
	}
}

func TestParseInstCountSurroundingOutput(t *testing.T) {
	out := []byte("client init\nsome chatter\nInstrumentation results: 99 instructions executed\ntrailer\n")
	got, err := parseInstCount(out)
	if err != nil {
		t.Fatalf("parseInstCount() error: %v", err)
	}
	if got != 99 {
		t.Errorf("parseInstCount() = %d, want 99", got)
	}
}
