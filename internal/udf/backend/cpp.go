package backend

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/shlex"

	"github.com/junefish/hdf5-udf/internal/udf/codec"
	"github.com/junefish/hdf5-udf/internal/udf/observer"
	"github.com/junefish/hdf5-udf/internal/udf/result"
	appErr "github.com/junefish/hdf5-udf/pkg/errors"
	"github.com/junefish/hdf5-udf/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	// DefaultCppCompileCmd builds a position-independent shared object with
	// LTO. -C keeps comments during preprocessing; the placeholder itself is
	// already replaced by Assemble before the compiler runs.
	DefaultCppCompileCmd = "g++ -rdynamic -shared -fPIC -flto -Os -C -o {output} {source}"
	// DefaultCppScanCmd re-emits the source with comments stripped so dataset
	// references can be grepped reliably. Line markers remain in the output.
	DefaultCppScanCmd = "g++ -fpreprocessed -dD -E {source}"
	// DefaultCppPlaceholder marks the splice point inside the template.
	DefaultCppPlaceholder = "// user_callback_placeholder"
)

// CppConfig tunes the C++ backend. Zero values fall back to the defaults
// above.
type CppConfig struct {
	CompileCmd  string `yaml:"compile_cmd"`
	ScanCmd     string `yaml:"scan_cmd"`
	Placeholder string `yaml:"placeholder"`
}

// CppBackend compiles C++ UDFs through the system toolchain.
type CppBackend struct {
	cfg     CppConfig
	metrics observer.MetricsRecorder
}

// NewCppBackend constructs the backend. A nil recorder disables metrics.
func NewCppBackend(cfg CppConfig, metrics observer.MetricsRecorder) *CppBackend {
	if cfg.CompileCmd == "" {
		cfg.CompileCmd = DefaultCppCompileCmd
	}
	if cfg.ScanCmd == "" {
		cfg.ScanCmd = DefaultCppScanCmd
	}
	if cfg.Placeholder == "" {
		cfg.Placeholder = DefaultCppPlaceholder
	}
	if metrics == nil {
		metrics = observer.NoopMetricsRecorder{}
	}
	return &CppBackend{cfg: cfg, metrics: metrics}
}

func (b *CppBackend) Name() string      { return "C++" }
func (b *CppBackend) Extension() string { return ".cpp" }

// buildCommand substitutes the source and output paths into the command
// template and splits it into argv, honoring shell quoting.
func buildCommand(tpl, source, output string) ([]string, error) {
	cmd := strings.ReplaceAll(tpl, "{source}", source)
	cmd = strings.ReplaceAll(cmd, "{output}", output)
	argv, err := shlex.Split(cmd)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.CompileError, "parse command template %q: %v", tpl, err)
	}
	if len(argv) == 0 {
		return nil, appErr.New(appErr.CompileError).WithMessage("command template is empty")
	}
	return argv, nil
}

// Compile assembles the UDF into the template, invokes the compiler and
// returns the shared object as a compressed blob. Success is decided by the
// presence of the output artifact, not by the compiler exit status; the
// status is recorded on the result as diagnostic data.
func (b *CppBackend) Compile(ctx context.Context, udfPath, templatePath string) (result.CompileResult, error) {
	start := time.Now()
	res, err := b.compile(ctx, udfPath, templatePath)
	res.TimeMs = time.Since(start).Milliseconds()
	if err != nil && res.Error == "" {
		res.Error = err.Error()
	}
	b.metrics.ObserveCompile(ctx, b.Name(), res.OK, res.TimeMs, len(res.Blob))
	return res, err
}

func (b *CppBackend) compile(ctx context.Context, udfPath, templatePath string) (result.CompileResult, error) {
	var res result.CompileResult

	assembled, err := Assemble(udfPath, templatePath, b.cfg.Placeholder, b.Extension())
	if err != nil {
		return res, err
	}
	defer os.Remove(assembled)

	objectPath := strings.TrimSuffix(assembled, b.Extension()) + ".so"
	defer os.Remove(objectPath)

	argv, err := buildCommand(b.cfg.CompileCmd, assembled, objectPath)
	if err != nil {
		return res, err
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stderr = os.Stderr
	runErr := cmd.Run()
	if runErr != nil {
		if execErr, ok := runErr.(*exec.Error); ok {
			return res, appErr.Wrapf(execErr, appErr.CompilerNotFound, "compiler %s not found: %v", argv[0], execErr)
		}
		logger.Warn(ctx, "compiler exited abnormally",
			zap.String("compiler", argv[0]),
			zap.Error(runErr))
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	object, err := os.ReadFile(objectPath)
	if err != nil {
		return res, appErr.Wrapf(err, appErr.ArtifactMissing, "compiler produced no output at %s", objectPath)
	}

	blob, err := codec.Compress(object)
	if err != nil {
		return res, err
	}
	res.OK = true
	res.Blob = blob
	return res, nil
}

// Scan runs the preprocessor over the UDF and extracts the dataset names it
// reads. A missing compiler is not an error: scanning is advisory and the
// caller falls back to explicit dataset declarations.
func (b *CppBackend) Scan(ctx context.Context, udfPath string) ([]string, error) {
	argv, err := buildCommand(b.cfg.ScanCmd, udfPath, "")
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		if _, ok := err.(*exec.Error); ok {
			logger.Warn(ctx, "preprocessor unavailable, skipping dataset scan",
				zap.String("compiler", argv[0]))
			return nil, nil
		}
		return nil, appErr.Wrapf(err, appErr.ScanError, "preprocess %s: %v", udfPath, err)
	}
	return ParseDatasetRefs(&out), nil
}

// ParseDatasetRefs extracts dataset names from preprocessed source. Each
// line containing a lib.getData call contributes the first double-quoted
// literal that follows it. Order and duplicates are preserved.
func ParseDatasetRefs(r io.Reader) []string {
	var names []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		idx := strings.Index(line, "lib.getData")
		if idx < 0 {
			continue
		}
		rest := line[idx:]
		open := strings.Index(rest, `"`)
		if open < 0 {
			continue
		}
		rest = rest[open+1:]
		end := strings.Index(rest, `"`)
		if end < 0 {
			continue
		}
		names = append(names, rest[:end])
	}
	return names
}
