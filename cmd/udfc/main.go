//go:build linux

// Command udfc packs and runs user-defined functions: it compiles UDF
// source into embeddable blobs, scans source for dataset references and
// executes blobs against on-disk dataset buffers.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/junefish/hdf5-udf/internal/udf/backend"
	"github.com/junefish/hdf5-udf/internal/udf/dataset"
	"github.com/junefish/hdf5-udf/internal/udf/executor"
	"github.com/junefish/hdf5-udf/internal/udf/observer"
	"github.com/junefish/hdf5-udf/pkg/utils/logger"
)

const defaultConfigPath = "configs/udfc.yaml"

func usage() {
	fmt.Fprintf(os.Stderr, `Usage:
  udfc [-config path] compile <udf-source>
  udfc [-config path] scan <udf-source>
  udfc [-config path] run -blob <file> -output name:type:dims [-cast type] [-input name:type:dims:file ...] [-data path] [-out file]

Dims are 'x'-separated extents, e.g. 100x50.
`)
	os.Exit(2)
}

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() < 1 {
		usage()
	}

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx := context.Background()
	switch flag.Arg(0) {
	case "compile":
		err = runCompile(ctx, appCfg, flag.Args()[1:])
	case "scan":
		err = runScan(ctx, appCfg, flag.Args()[1:])
	case "run":
		err = runExecute(ctx, appCfg, flag.Args()[1:])
	default:
		usage()
	}
	if err != nil {
		logger.Error(ctx, "command failed", zap.String("command", flag.Arg(0)), zap.Error(err))
		os.Exit(1)
	}
}

func backendFor(cfg AppConfig, sourcePath string) (*backend.CppBackend, string, error) {
	b := backend.NewCppBackend(cfg.Cpp, observer.NoopMetricsRecorder{})
	if ext := filepath.Ext(sourcePath); ext != b.Extension() {
		return nil, "", fmt.Errorf("no backend manages %q sources", ext)
	}
	template := filepath.Join(cfg.TemplateDir, "udf_template"+b.Extension())
	return b, template, nil
}

func runCompile(ctx context.Context, cfg AppConfig, args []string) error {
	if len(args) != 1 {
		usage()
	}
	sourcePath := args[0]
	b, template, err := backendFor(cfg, sourcePath)
	if err != nil {
		return err
	}
	res, err := b.Compile(ctx, sourcePath, template)
	if err != nil {
		return err
	}
	blobPath := sourcePath + ".blob"
	if err := os.WriteFile(blobPath, res.Blob, 0644); err != nil {
		return err
	}
	logger.Info(ctx, "UDF compiled",
		zap.String("backend", b.Name()),
		zap.String("blob", blobPath),
		zap.Int("blob_bytes", len(res.Blob)),
		zap.Int("compiler_exit_code", res.ExitCode),
		zap.Int64("time_ms", res.TimeMs))
	return nil
}

func runScan(ctx context.Context, cfg AppConfig, args []string) error {
	if len(args) != 1 {
		usage()
	}
	b, _, err := backendFor(cfg, args[0])
	if err != nil {
		return err
	}
	names, err := b.Scan(ctx, args[0])
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}

func runExecute(ctx context.Context, cfg AppConfig, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	blobPath := fs.String("blob", "", "Compiled UDF blob file")
	outputSpec := fs.String("output", "", "Output dataset as name:type:dims")
	cast := fs.String("cast", "", "Datatype tag the UDF sees for the output")
	dataPath := fs.String("data", "", "Hosting data file, used for policy lookup")
	outFile := fs.String("out", "", "Write the output buffer here instead of stdout")
	var inputSpecs stringList
	fs.Var(&inputSpecs, "input", "Input dataset as name:type:dims:file (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *blobPath == "" || *outputSpec == "" {
		usage()
	}

	blob, err := os.ReadFile(*blobPath)
	if err != nil {
		return err
	}
	output, err := parseDataset(*outputSpec)
	if err != nil {
		return err
	}
	output.Data = make([]byte, output.Room())

	var inputs []*dataset.Info
	for _, spec := range inputSpecs {
		in, err := parseInputDataset(spec)
		if err != nil {
			return err
		}
		inputs = append(inputs, in)
	}

	engine, err := executor.NewEngine(cfg.Executor, observer.NoopMetricsRecorder{})
	if err != nil {
		return err
	}
	res, err := engine.Run(ctx, *dataPath, inputs, output, *cast, blob)
	if err != nil {
		return err
	}
	logger.Info(ctx, "UDF executed",
		zap.Int("exit_code", res.ExitCode),
		zap.Bool("signaled", res.Signaled),
		zap.Int64("wall_time_ms", res.WallTimeMs),
		zap.Strings("denied_paths", res.DeniedPaths))

	if *outFile != "" {
		return os.WriteFile(*outFile, output.Data, 0644)
	}
	_, err = os.Stdout.Write(output.Data)
	return err
}

// parseDataset parses "name:type:dims" with 'x'-separated extents.
func parseDataset(spec string) (*dataset.Info, error) {
	parts := strings.Split(spec, ":")
	if len(parts) != 3 {
		return nil, fmt.Errorf("dataset spec %q is not name:type:dims", spec)
	}
	dims, err := parseDims(parts[2])
	if err != nil {
		return nil, err
	}
	info, err := dataset.New(parts[0], parts[1], dims)
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// parseInputDataset parses "name:type:dims:file" and loads the buffer.
func parseInputDataset(spec string) (*dataset.Info, error) {
	idx := strings.LastIndex(spec, ":")
	if idx < 0 {
		return nil, fmt.Errorf("input spec %q is not name:type:dims:file", spec)
	}
	info, err := parseDataset(spec[:idx])
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(spec[idx+1:])
	if err != nil {
		return nil, err
	}
	if uint64(len(data)) != info.Room() {
		return nil, fmt.Errorf("input %s holds %d bytes, grid needs %d", info.Name, len(data), info.Room())
	}
	info.Data = data
	return info, nil
}

func parseDims(s string) ([]uint64, error) {
	var dims []uint64
	for _, part := range strings.Split(s, "x") {
		v, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad dimension %q: %w", part, err)
		}
		dims = append(dims, v)
	}
	return dims, nil
}

type stringList []string

func (s *stringList) String() string     { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error { *s = append(*s, v); return nil }
