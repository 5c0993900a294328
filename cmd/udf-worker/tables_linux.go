//go:build linux

package main

import (
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/junefish/hdf5-udf/internal/udf/executor"
	"github.com/junefish/hdf5-udf/internal/udf/shmem"
	appErr "github.com/junefish/hdf5-udf/pkg/errors"
)

// tableAddrs holds the resolved addresses of the artifact's runtime tables.
type tableAddrs struct {
	data  uintptr
	names uintptr
	types uintptr
	dims  uintptr
	count uintptr
}

func (t tableAddrs) missing() bool {
	return t.data == 0 || t.names == 0 || t.types == 0 || t.dims == 0 || t.count == 0
}

const ptrSize = unsafe.Sizeof(uintptr(0))

// arena is a bump allocator over anonymous mapped memory. Table entries
// point into it, so it must stay mapped for the lifetime of the UDF call;
// the process exits without ever releasing it.
type arena struct {
	mem  []byte
	next int
}

func newArena(size int) (*arena, error) {
	mem, err := unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.MapError)
	}
	return &arena{mem: mem}, nil
}

func (a *arena) alloc(n, align int) (uintptr, []byte, error) {
	pad := (align - a.next%align) % align
	if a.next+pad+n > len(a.mem) {
		return 0, nil, appErr.New(appErr.MapError).WithMessage("table arena exhausted")
	}
	a.next += pad
	off := a.next
	a.next += n
	return uintptr(unsafe.Pointer(&a.mem[off])), a.mem[off : off+n], nil
}

// cstring copies s into the arena with a NUL terminator.
func (a *arena) cstring(s string) (uintptr, error) {
	addr, buf, err := a.alloc(len(s)+1, 1)
	if err != nil {
		return 0, err
	}
	copy(buf, s)
	buf[len(s)] = 0
	return addr, nil
}

// dimsRow copies extents into the arena as a zero-terminated uint64 row.
func (a *arena) dimsRow(dims []uint64) (uintptr, error) {
	addr, buf, err := a.alloc((len(dims)+1)*8, 8)
	if err != nil {
		return 0, err
	}
	for i, d := range dims {
		*(*uint64)(unsafe.Pointer(&buf[i*8])) = d
	}
	*(*uint64)(unsafe.Pointer(&buf[len(dims)*8])) = 0
	return addr, nil
}

func storePtr(base uintptr, index int, value uintptr) {
	*(*uintptr)(unsafe.Pointer(base + uintptr(index)*ptrSize)) = value
}

// populateTables fills the artifact's runtime tables in the order
// [output, inputs...], all four tables in sync. The output's datatype tag
// is replaced by the cast hint when one is given; only the tag changes, the
// region layout stays that of the declared output.
func populateTables(t tableAddrs, req *executor.WorkerRequest, out, in *shmem.Region) error {
	arenaSize := 4096
	for _, d := range req.Inputs {
		arenaSize += len(d.Name) + len(d.Datatype) + (len(d.Dims)+1)*8 + 32
	}
	a, err := newArena(arenaSize)
	if err != nil {
		return err
	}

	outputType := req.Output.Datatype
	if req.OutputCast != "" {
		outputType = req.OutputCast
	}

	set := func(index int, name, datatype string, dims []uint64, data uintptr) error {
		nameAddr, err := a.cstring(name)
		if err != nil {
			return err
		}
		typeAddr, err := a.cstring(datatype)
		if err != nil {
			return err
		}
		dimsAddr, err := a.dimsRow(dims)
		if err != nil {
			return err
		}
		storePtr(t.data, index, data)
		storePtr(t.names, index, nameAddr)
		storePtr(t.types, index, typeAddr)
		storePtr(t.dims, index, dimsAddr)
		return nil
	}

	if err := set(0, req.Output.Name, outputType, req.Output.Dims,
		uintptr(unsafe.Pointer(&out.Bytes()[0]))); err != nil {
		return err
	}
	for i, d := range req.Inputs {
		var data uintptr
		if d.Size > 0 {
			data = uintptr(unsafe.Pointer(&in.Bytes()[d.Offset]))
		}
		if err := set(1+i, d.Name, d.Datatype, d.Dims, data); err != nil {
			return err
		}
	}

	*(*uint64)(unsafe.Pointer(t.count)) = uint64(1 + len(req.Inputs))
	return nil
}
