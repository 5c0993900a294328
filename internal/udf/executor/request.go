// Package executor orchestrates one UDF invocation: it materializes the
// compiled artifact, maps the shared regions, spawns the confined worker
// and copies the result back to the caller.
package executor

import (
	"github.com/junefish/hdf5-udf/internal/udf/sandbox"
	appErr "github.com/junefish/hdf5-udf/pkg/errors"
)

// Region descriptor indices inherited by the worker, after stdio.
const (
	// FdOutputRegion is the writable output mapping.
	FdOutputRegion = 3
	// FdInputRegion holds all input buffers back to back.
	FdInputRegion = 4
	// FdNotifySock is the socketpair end for passing the seccomp notify
	// descriptor back to the supervisor.
	FdNotifySock = 5
)

// WorkerDataset describes one dataset to the worker. Offset and Size locate
// the element bytes inside the input region; the output dataset carries
// zeroes there since its storage is the whole output region.
type WorkerDataset struct {
	Name        string   `json:"name"`
	Datatype    string   `json:"datatype"`
	Dims        []uint64 `json:"dims"`
	StorageSize uint64   `json:"storage_size"`
	Offset      uint64   `json:"offset"`
	Size        uint64   `json:"size"`
}

// WorkerRequest is the stdin payload for one worker invocation.
type WorkerRequest struct {
	ObjectPath    string          `json:"object_path"`
	Output        WorkerDataset   `json:"output"`
	Inputs        []WorkerDataset `json:"inputs"`
	OutputCast    string          `json:"output_cast,omitempty"`
	OutputSize    uint64          `json:"output_size"`
	InputSize     uint64          `json:"input_size"`
	EnableSandbox bool            `json:"enable_sandbox"`
	Policy        sandbox.Policy  `json:"policy"`
	Profile       sandbox.Profile `json:"profile"`
}

// Validate rejects requests the worker could not act on.
func (r *WorkerRequest) Validate() error {
	if r.ObjectPath == "" {
		return appErr.New(appErr.InvalidParams).WithMessage("object path is empty")
	}
	if r.OutputSize == 0 {
		return appErr.New(appErr.InvalidParams).WithMessage("output region size is zero")
	}
	if r.Output.Name == "" {
		return appErr.New(appErr.InvalidParams).WithMessage("output dataset has no name")
	}
	for _, in := range r.Inputs {
		if in.Offset+in.Size > r.InputSize {
			return appErr.Newf(appErr.InvalidParams, "input %s extends past region end", in.Name)
		}
	}
	return nil
}
