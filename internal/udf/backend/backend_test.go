package backend_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/junefish/hdf5-udf/internal/udf/backend"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestAssemble(t *testing.T) {
	dir := t.TempDir()
	udf := writeFile(t, dir, "udf.cpp", "void dynamic_dataset() { /* body */ }\n")
	tpl := writeFile(t, dir, "template.cpp", "// runtime\n// user_callback_placeholder\n// trailer\n")

	out, err := backend.Assemble(udf, tpl, "// user_callback_placeholder", ".cpp")
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	defer os.Remove(out)

	assembled, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read assembled: %v", err)
	}
	text := string(assembled)
	if !strings.Contains(text, "void dynamic_dataset()") {
		t.Error("assembled source does not contain UDF body")
	}
	if strings.Contains(text, "user_callback_placeholder") {
		t.Error("placeholder survived assembly")
	}
	if !strings.Contains(text, "// runtime") || !strings.Contains(text, "// trailer") {
		t.Error("template text around the placeholder was lost")
	}
	if filepath.Ext(out) != ".cpp" {
		t.Errorf("assembled file extension = %q, want .cpp", filepath.Ext(out))
	}
}

func TestAssemblePlaceholderMissing(t *testing.T) {
	dir := t.TempDir()
	udf := writeFile(t, dir, "udf.cpp", "void dynamic_dataset() {}\n")
	tpl := writeFile(t, dir, "template.cpp", "// no splice point here\n")

	if _, err := backend.Assemble(udf, tpl, "// user_callback_placeholder", ".cpp"); err == nil {
		t.Fatal("expected error for missing placeholder")
	}
}

func TestAssembleEmptyUDF(t *testing.T) {
	dir := t.TempDir()
	udf := writeFile(t, dir, "udf.cpp", "   \n\t\n")
	tpl := writeFile(t, dir, "template.cpp", "// user_callback_placeholder\n")

	if _, err := backend.Assemble(udf, tpl, "// user_callback_placeholder", ".cpp"); err == nil {
		t.Fatal("expected error for empty UDF source")
	}
}

func TestWriteArtifact(t *testing.T) {
	path, err := backend.WriteArtifact([]byte{0x7F, 'E', 'L', 'F'}, ".so")
	if err != nil {
		t.Fatalf("WriteArtifact() error = %v", err)
	}
	defer os.Remove(path)

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat artifact: %v", err)
	}
	if info.Mode().Perm()&0100 == 0 {
		t.Error("artifact is not executable")
	}
}

func TestByExtension(t *testing.T) {
	cpp := backend.NewCppBackend(backend.CppConfig{}, nil)
	backends := []backend.Backend{cpp}

	if b, ok := backend.ByExtension(backends, ".cpp"); !ok || b.Name() != "C++" {
		t.Errorf("ByExtension(.cpp) = %v, %v; want C++ backend", b, ok)
	}
	if _, ok := backend.ByExtension(backends, ".lua"); ok {
		t.Error("ByExtension(.lua) should not resolve")
	}
}

func TestParseDatasetRefs(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			"single reference",
			`auto data = lib.getData<double>("temperature");`,
			[]string{"temperature"},
		},
		{
			"order and duplicates preserved",
			`a = lib.getData<int>("b_ds");
x = lib.getData<int>("a_ds");
y = lib.getData<int>("b_ds");`,
			[]string{"b_ds", "a_ds", "b_ds"},
		},
		{
			"unrelated lines ignored",
			`int x = 1;
// lib.getData commentary without quotes
auto d = lib.getDims("shape");`,
			nil,
		},
		{
			"reference without closing quote ignored",
			`lib.getData<int>("broken`,
			nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := backend.ParseDatasetRefs(strings.NewReader(tt.input))
			if len(got) != len(tt.want) {
				t.Fatalf("ParseDatasetRefs() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("ref[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}
