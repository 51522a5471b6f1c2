package cli

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/apiguard/internal/config"
)

func TestInit_WritesSampleConfig(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"init", "--out", path})

	if err := root.Execute(); err != nil {
		t.Fatalf("init execute: %v", err)
	}
	if !strings.Contains(out.String(), "Wrote sample config") {
		t.Fatalf("unexpected output: %s", out.String())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	s := string(data)
	if !strings.Contains(s, "apiguard configuration") || !strings.Contains(s, "# metrics: false") {
		t.Fatalf("unexpected config contents: %s", s)
	}

	// Every option is commented out, so the file loads as empty.
	f, err := config.LoadFile(path)
	if err != nil {
		t.Fatalf("load sample: %v", err)
	}
	if f.Input != "" || f.Operation != "" {
		t.Fatalf("sample config sets values: %+v", f)
	}
}

func TestInit_SeedsFromDocument(t *testing.T) {
	api := newPetsAPI(t)
	path := filepath.Join(t.TempDir(), "apiguard.yaml")

	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"init", "--out", path, "--input", api.spec, "--operation", "getPet"})
	if err := root.Execute(); err != nil {
		t.Fatalf("init execute: %v", err)
	}
	if !strings.Contains(out.String(), "Wrote config for 2 operations") {
		t.Fatalf("unexpected output: %s", out.String())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if !strings.Contains(string(data), "#   getPet (GET /pets/{petId}) responses: 200,404") {
		t.Fatalf("operation listing missing: %s", data)
	}

	f, err := config.LoadFile(path)
	if err != nil {
		t.Fatalf("load seeded config: %v", err)
	}
	if f.Input != api.spec || f.Operation != "getPet" || f.BaseURL != api.srv.URL+"/v1" {
		t.Fatalf("seeded values: %+v", f)
	}
}

func TestInit_UnknownOperation(t *testing.T) {
	api := newPetsAPI(t)
	path := filepath.Join(t.TempDir(), "apiguard.yaml")

	root := NewRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"init", "--out", path, "--input", api.spec, "--operation", "deletePet"})

	err := root.Execute()
	if _, ok := err.(usageError); !ok {
		t.Fatalf("expected usage error, got %T: %v", err, err)
	}
	if !strings.Contains(err.Error(), "available: createPet, getPet") {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Fatalf("config written despite error")
	}
}

func TestInit_OperationNeedsInput(t *testing.T) {
	t.Parallel()
	root := NewRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"init", "--out", filepath.Join(t.TempDir(), "c.yaml"), "--operation", "getPet"})

	if _, ok := root.Execute().(usageError); !ok {
		t.Fatalf("expected usage error")
	}
}

func TestInit_ExistingWithoutForce(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
		t.Fatalf("prewrite: %v", err)
	}

	root := NewRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"init", "--out", path})

	err := root.Execute()
	if err == nil {
		t.Fatalf("expected error for existing file without --force")
	}
	if _, ok := err.(usageError); !ok {
		t.Fatalf("expected usage error, got %T: %v", err, err)
	}
}
