package sandbox_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/junefish/hdf5-udf/internal/udf/sandbox"
)

func TestDefaultPolicy(t *testing.T) {
	p := sandbox.DefaultPolicy()
	expanded := p.Expand()
	if !sandbox.Allows(expanded, "/etc/resolv.conf") {
		t.Error("default policy should allow /etc/resolv.conf")
	}
	if sandbox.Allows(expanded, "/etc/passwd") {
		t.Error("default policy should not allow /etc/passwd")
	}
}

func TestExpandGlobs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.conf", "b.conf", "c.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	p := sandbox.Policy{AllowedPaths: []string{
		filepath.Join(dir, "*.conf"),
		"/nonexistent/literal/path",
		filepath.Join(dir, "*.yaml"),
	}}
	expanded := p.Expand()

	if !sandbox.Allows(expanded, filepath.Join(dir, "a.conf")) {
		t.Error("glob match a.conf missing from expansion")
	}
	if !sandbox.Allows(expanded, filepath.Join(dir, "b.conf")) {
		t.Error("glob match b.conf missing from expansion")
	}
	if sandbox.Allows(expanded, filepath.Join(dir, "c.txt")) {
		t.Error("c.txt should not match *.conf")
	}
	// Literals survive even when the file does not exist.
	if !sandbox.Allows(expanded, "/nonexistent/literal/path") {
		t.Error("literal entry was dropped")
	}
	// A glob with no matches contributes nothing.
	if len(expanded) != 3 {
		t.Errorf("expanded to %d entries, want 3: %v", len(expanded), expanded)
	}
}

func TestAllowsIsExact(t *testing.T) {
	expanded := []string{"/etc/resolv.conf"}
	for _, path := range []string{"/etc", "/etc/resolv.conf.bak", "/etc/resolv"} {
		if sandbox.Allows(expanded, path) {
			t.Errorf("Allows(%q) = true, want false", path)
		}
	}
}

func TestLoadPolicy(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file yields default", func(t *testing.T) {
		p, err := sandbox.LoadPolicy(filepath.Join(dir, "absent.yaml"))
		if err != nil {
			t.Fatalf("LoadPolicy() error = %v", err)
		}
		if len(p.AllowedPaths) != 1 || p.AllowedPaths[0] != "/etc/resolv.conf" {
			t.Errorf("got %v, want default policy", p.AllowedPaths)
		}
	})

	t.Run("explicit paths", func(t *testing.T) {
		path := filepath.Join(dir, "policy.yaml")
		content := "allowed_paths:\n  - /data/lookup.bin\n  - /etc/hosts\n"
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("write policy: %v", err)
		}
		p, err := sandbox.LoadPolicy(path)
		if err != nil {
			t.Fatalf("LoadPolicy() error = %v", err)
		}
		if len(p.AllowedPaths) != 2 || p.AllowedPaths[0] != "/data/lookup.bin" {
			t.Errorf("got %v", p.AllowedPaths)
		}
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(dir, "broken.yaml")
		if err := os.WriteFile(path, []byte("allowed_paths: [unclosed"), 0644); err != nil {
			t.Fatalf("write policy: %v", err)
		}
		if _, err := sandbox.LoadPolicy(path); err == nil {
			t.Fatal("expected error for malformed yaml")
		}
	})
}

func TestSidecarPolicyPath(t *testing.T) {
	got := sandbox.SidecarPolicyPath("/data/experiment.h5")
	if got != "/data/experiment.h5.udf-policy.yaml" {
		t.Errorf("SidecarPolicyPath() = %q", got)
	}
}

func TestProfileValidate(t *testing.T) {
	if err := sandbox.DefaultProfile().Validate(); err != nil {
		t.Fatalf("default profile invalid: %v", err)
	}

	bad := sandbox.Profile{Syscalls: []sandbox.SyscallRule{{Names: nil}}}
	if err := bad.Validate(); err == nil {
		t.Error("expected error for rule without names")
	}

	badOp := sandbox.Profile{Syscalls: []sandbox.SyscallRule{{
		Names: []string{"open"},
		Arg:   &sandbox.ArgRule{Op: "gt", Value: 1},
	}}}
	if err := badOp.Validate(); err == nil {
		t.Error("expected error for unknown arg op")
	}
}
