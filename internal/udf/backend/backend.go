// Package backend turns UDF source text into embeddable compiled blobs and
// scans it for dataset references.
package backend

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/junefish/hdf5-udf/internal/udf/result"
	appErr "github.com/junefish/hdf5-udf/pkg/errors"
)

// Backend compiles one UDF source language.
type Backend interface {
	// Name is the human-readable backend name.
	Name() string
	// Extension is the canonical source extension, including the dot.
	Extension() string
	// Compile assembles the UDF with its runtime template, builds a
	// position-independent shared object and returns it as a compressed
	// blob suitable for embedding. The result carries the compiler exit
	// status as diagnostic data; presence of the artifact decides success.
	Compile(ctx context.Context, udfPath, templatePath string) (result.CompileResult, error)
	// Scan extracts the input dataset names the UDF refers to, in source
	// order with duplicates preserved. Advisory: a backend that cannot
	// spawn its tooling returns an empty list and no error.
	Scan(ctx context.Context, udfPath string) ([]string, error)
}

// ByExtension returns the backend managing the given source extension.
func ByExtension(backends []Backend, ext string) (Backend, bool) {
	for _, b := range backends {
		if b.Extension() == ext {
			return b, true
		}
	}
	return nil, false
}

// Assemble splices the UDF text into the template at the first occurrence of
// placeholder and writes the result to a uniquely named temporary file with
// the given extension. The caller unlinks the file when done.
func Assemble(udfPath, templatePath, placeholder, extension string) (string, error) {
	udfText, err := os.ReadFile(udfPath)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.AssemblyError, "read UDF source %s: %v", udfPath, err)
	}
	if len(strings.TrimSpace(string(udfText))) == 0 {
		return "", appErr.New(appErr.AssemblyError).WithMessage("UDF source is empty")
	}
	templateText, err := os.ReadFile(templatePath)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.TemplateUnreadable, "read template %s: %v", templatePath, err)
	}

	idx := strings.Index(string(templateText), placeholder)
	if idx < 0 {
		return "", appErr.Newf(appErr.PlaceholderMissing, "placeholder %q not found in %s", placeholder, templatePath)
	}
	assembled := strings.Replace(string(templateText), placeholder, string(udfText), 1)

	outPath := filepath.Join(os.TempDir(), "udf-"+uuid.NewString()+extension)
	if err := os.WriteFile(outPath, []byte(assembled), 0644); err != nil {
		return "", appErr.Wrap(err, appErr.AssemblyError)
	}
	return outPath, nil
}

// WriteArtifact materializes shared object bytes on disk under a uniquely
// named path and marks it executable, as required by the loader.
func WriteArtifact(data []byte, extension string) (string, error) {
	path := filepath.Join(os.TempDir(), "udf-"+uuid.NewString()+extension)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", appErr.Wrap(err, appErr.Internal)
	}
	if err := os.Chmod(path, 0755); err != nil {
		_ = os.Remove(path)
		return "", appErr.Wrap(err, appErr.Internal)
	}
	return path, nil
}
