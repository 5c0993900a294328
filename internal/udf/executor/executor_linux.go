//go:build linux

package executor

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"os/exec"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/junefish/hdf5-udf/internal/udf/backend"
	"github.com/junefish/hdf5-udf/internal/udf/codec"
	"github.com/junefish/hdf5-udf/internal/udf/dataset"
	"github.com/junefish/hdf5-udf/internal/udf/observer"
	"github.com/junefish/hdf5-udf/internal/udf/result"
	"github.com/junefish/hdf5-udf/internal/udf/sandbox"
	"github.com/junefish/hdf5-udf/internal/udf/shmem"
	appErr "github.com/junefish/hdf5-udf/pkg/errors"
	"github.com/junefish/hdf5-udf/pkg/utils/logger"
)

// Engine runs compiled UDF blobs in confined worker processes.
type Engine struct {
	cfg     Config
	metrics observer.MetricsRecorder
}

// NewEngine creates a Linux executor engine.
func NewEngine(cfg Config, metrics observer.MetricsRecorder) (*Engine, error) {
	if cfg.WorkerPath == "" {
		cfg.WorkerPath = DefaultConfig().WorkerPath
	}
	if metrics == nil {
		metrics = observer.NoopMetricsRecorder{}
	}
	return &Engine{cfg: cfg, metrics: metrics}, nil
}

// Run executes one UDF invocation. dataPath identifies the hosting file and
// is used only to look up a sidecar sandbox policy. The output descriptor's
// buffer is overwritten with the shared region contents after the worker
// exits, whatever its fate: a crashed or killed worker yields OK with the
// exit data recorded as diagnostics. A returned error means the parent-side
// pipeline failed before the worker could run.
func (e *Engine) Run(ctx context.Context, dataPath string, inputs []*dataset.Info, output *dataset.Info, outputCast string, blob []byte) (result.RunResult, error) {
	start := time.Now()
	res, err := e.run(ctx, dataPath, inputs, output, outputCast, blob)
	e.metrics.ObserveRun(ctx, "C++", res.ExitCode, time.Since(start).Milliseconds(), len(output.Data))
	return res, err
}

func (e *Engine) run(ctx context.Context, dataPath string, inputs []*dataset.Info, output *dataset.Info, outputCast string, blob []byte) (result.RunResult, error) {
	if err := output.Validate(); err != nil {
		return result.RunResult{}, err
	}
	room := output.Room()
	if uint64(len(output.Data)) < room {
		return result.RunResult{}, appErr.Newf(appErr.InvalidParams,
			"output buffer holds %d bytes, grid needs %d", len(output.Data), room)
	}

	object, err := codec.Decompress(blob)
	if err != nil {
		return result.RunResult{}, err
	}
	objectPath, err := backend.WriteArtifact(object, ".so")
	if err != nil {
		return result.RunResult{}, err
	}
	defer os.Remove(objectPath)

	outRegion, err := shmem.Create(room)
	if err != nil {
		return result.RunResult{}, err
	}
	defer outRegion.Close()

	inRegion, descriptors, err := packInputs(inputs)
	if err != nil {
		return result.RunResult{}, err
	}
	defer inRegion.Close()

	policy, err := sandbox.LoadPolicy(sandbox.SidecarPolicyPath(dataPath))
	if err != nil {
		return result.RunResult{}, err
	}
	profile := sandbox.DefaultProfile()
	if e.cfg.ProfilePath != "" {
		if profile, err = sandbox.LoadProfile(e.cfg.ProfilePath); err != nil {
			return result.RunResult{}, err
		}
	}

	req := WorkerRequest{
		ObjectPath:    objectPath,
		Output:        datasetDescriptor(output, 0, 0),
		Inputs:        descriptors,
		OutputCast:    outputCast,
		OutputSize:    room,
		InputSize:     uint64(inRegion.Size()),
		EnableSandbox: e.cfg.EnableSandbox,
		Policy:        policy,
		Profile:       profile,
	}
	if err := req.Validate(); err != nil {
		return result.RunResult{}, err
	}

	sockPair, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return result.RunResult{}, appErr.Wrap(err, appErr.ForkError)
	}
	parentSock := sockPair[0]
	childSock := os.NewFile(uintptr(sockPair[1]), "udf-notify")
	defer unix.Close(parentSock)

	stdinPipe, err := jsonToPipe(req)
	if err != nil {
		childSock.Close()
		return result.RunResult{}, appErr.Wrap(err, appErr.Internal)
	}
	defer stdinPipe.Close()

	cmd := exec.CommandContext(ctx, e.cfg.WorkerPath)
	cmd.Stdin = stdinPipe
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = []*os.File{outRegion.File(), inRegion.File(), childSock}
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}

	startTime := time.Now()
	if err := cmd.Start(); err != nil {
		childSock.Close()
		return result.RunResult{}, appErr.Wrapf(err, appErr.ForkError, "start worker %s: %v", e.cfg.WorkerPath, err)
	}
	childSock.Close()

	var supervisor *sandbox.Supervisor
	supDone := make(chan struct{})
	if e.cfg.EnableSandbox {
		supervisor, err = sandbox.NewSupervisor(policy.Expand())
		if err != nil {
			killProcessGroup(cmd.Process.Pid)
			_ = cmd.Wait()
			return result.RunResult{}, err
		}
		go func() {
			defer close(supDone)
			notifFd, err := sandbox.ReceiveNotifyFd(parentSock)
			if err != nil {
				return
			}
			supervisor.Serve(ctx, notifFd)
		}()
	} else {
		close(supDone)
	}

	var timedOut atomic.Bool
	done := make(chan struct{})
	go func() {
		var wallTimer <-chan time.Time
		if e.cfg.Timeout > 0 {
			wallTimer = time.After(e.cfg.Timeout)
		}
		select {
		case <-ctx.Done():
			killProcessGroup(cmd.Process.Pid)
		case <-wallTimer:
			timedOut.Store(true)
			killProcessGroup(cmd.Process.Pid)
		case <-done:
		}
	}()

	waitErr := cmd.Wait()
	close(done)
	// Unblock the supervisor if the worker died before sending its
	// notify descriptor.
	_ = unix.Shutdown(parentSock, unix.SHUT_RDWR)
	<-supDone

	res := result.RunResult{
		OK:         true,
		WallTimeMs: time.Since(startTime).Milliseconds(),
	}
	res.ExitCode, res.Signaled, res.Signal = exitStatus(waitErr, cmd.ProcessState)
	if timedOut.Load() {
		res.Signaled = true
		if res.Signal == "" {
			res.Signal = unix.SIGKILL.String()
		}
	}
	if supervisor != nil {
		res.DeniedPaths = supervisor.DeniedPaths()
	}

	if waitErr != nil {
		logger.Warn(ctx, "worker exited abnormally",
			zap.Int("exit_code", res.ExitCode),
			zap.Bool("signaled", res.Signaled),
			zap.String("signal", res.Signal))
	}

	copy(output.Data[:room], outRegion.Bytes())
	return res, nil
}

// packInputs concatenates all input buffers into one shared region and
// records each dataset's slot. The region is at least one byte so the
// worker can always map descriptor 4.
func packInputs(inputs []*dataset.Info) (*shmem.Region, []WorkerDataset, error) {
	var total uint64
	for _, in := range inputs {
		if err := in.Validate(); err != nil {
			return nil, nil, err
		}
		total += uint64(len(in.Data))
	}
	size := total
	if size == 0 {
		size = 1
	}
	region, err := shmem.Create(size)
	if err != nil {
		return nil, nil, err
	}

	descriptors := make([]WorkerDataset, 0, len(inputs))
	var offset uint64
	for _, in := range inputs {
		copy(region.Bytes()[offset:], in.Data)
		descriptors = append(descriptors, datasetDescriptor(in, offset, uint64(len(in.Data))))
		offset += uint64(len(in.Data))
	}
	return region, descriptors, nil
}

func datasetDescriptor(info *dataset.Info, offset, size uint64) WorkerDataset {
	return WorkerDataset{
		Name:        info.Name,
		Datatype:    info.Datatype,
		Dims:        info.Dims,
		StorageSize: info.StorageSize,
		Offset:      offset,
		Size:        size,
	}
}

func exitStatus(err error, state *os.ProcessState) (code int, signaled bool, signal string) {
	if state != nil {
		if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return int(ws.Signal()), true, ws.Signal().String()
		}
		return state.ExitCode(), false, ""
	}
	if err == nil {
		return 0, false, ""
	}
	return -1, false, ""
}

func killProcessGroup(pid int) {
	if pid <= 0 {
		return
	}
	_ = syscall.Kill(-pid, syscall.SIGKILL)
}

func jsonToPipe(req WorkerRequest) (io.ReadCloser, error) {
	reader, writer := io.Pipe()
	go func() {
		enc := json.NewEncoder(writer)
		err := enc.Encode(req)
		_ = writer.CloseWithError(err)
	}()
	return reader, nil
}
