//go:build linux

// Command udf-worker hosts one UDF invocation. The executor spawns it with
// the output region on descriptor 3, the input region on descriptor 4 and a
// socketpair end on descriptor 5, then feeds a JSON request on stdin. The
// worker loads the shared object, populates its runtime tables, confines
// itself and calls the entry point. It never returns through the normal
// runtime exit path: all terminations go through exit_group so that state
// inherited from the executor is not flushed twice.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ebitengine/purego"
	"golang.org/x/sys/unix"

	"github.com/junefish/hdf5-udf/internal/udf/executor"
	"github.com/junefish/hdf5-udf/internal/udf/sandbox"
	"github.com/junefish/hdf5-udf/internal/udf/sharedlib"
	"github.com/junefish/hdf5-udf/internal/udf/shmem"
)

// Symbols the compiled artifact must export.
const (
	symEntry = "dynamic_dataset"
	symData  = "udf_data"
	symNames = "udf_names"
	symTypes = "udf_types"
	symDims  = "udf_dims"
	symCount = "udf_count"
)

// maxDatasets mirrors the fixed table capacity declared by the template.
const maxDatasets = 64

func main() {
	req, err := decodeRequest(os.Stdin)
	if err != nil {
		fail("decode request", err)
	}
	if err := req.Validate(); err != nil {
		fail("validate request", err)
	}
	if 1+len(req.Inputs) > maxDatasets {
		fail("populate tables", fmt.Errorf("%d datasets exceed table capacity %d", 1+len(req.Inputs), maxDatasets))
	}

	outRegion, err := shmem.OpenRegion(executor.FdOutputRegion, req.OutputSize, true)
	if err != nil {
		fail("map output region", err)
	}
	inRegion, err := shmem.OpenRegion(executor.FdInputRegion, req.InputSize, false)
	if err != nil {
		fail("map input region", err)
	}

	lib, err := sharedlib.Open(req.ObjectPath)
	if err != nil {
		fail("load shared object", err)
	}

	entry := lib.Symbol(symEntry)
	tables := tableAddrs{
		data:  lib.Symbol(symData),
		names: lib.Symbol(symNames),
		types: lib.Symbol(symTypes),
		dims:  lib.Symbol(symDims),
		count: lib.Symbol(symCount),
	}
	if entry == 0 || tables.missing() {
		fail("resolve symbols", fmt.Errorf("artifact does not export the runtime interface"))
	}

	if err := populateTables(tables, req, outRegion, inRegion); err != nil {
		fail("populate tables", err)
	}

	if req.EnableSandbox {
		if err := sandbox.Install(req.Profile, executor.FdNotifySock); err != nil {
			fail("install sandbox", err)
		}
	}

	purego.SyscallN(entry)
	unix.Exit(0)
}

func decodeRequest(r *os.File) (*executor.WorkerRequest, error) {
	var req executor.WorkerRequest
	dec := json.NewDecoder(r)
	if err := dec.Decode(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

// fail reports the failing stage and terminates with exit_group, bypassing
// deferred and at-exit cleanup.
func fail(stage string, err error) {
	fmt.Fprintf(os.Stderr, "udf-worker: %s: %v\n", stage, err)
	unix.Exit(1)
}
