//go:build linux

// Package shmem provides anonymous shared memory regions passed between the
// executor and the UDF worker through inherited file descriptors.
package shmem

import (
	"os"

	"golang.org/x/sys/unix"

	appErr "github.com/junefish/hdf5-udf/pkg/errors"
)

// Region is a memfd-backed shared mapping. The creating process owns the
// lifetime; a worker maps the same memory from the inherited descriptor.
type Region struct {
	file *os.File
	data []byte
	size int
}

// Create allocates an anonymous shared region of the given size, mapped
// read/write in the calling process.
func Create(size uint64) (*Region, error) {
	if size == 0 {
		return nil, appErr.New(appErr.MapError).WithMessage("shared region size must be non-zero")
	}

	fd, err := unix.MemfdCreate("udf-region", unix.MFD_CLOEXEC)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.MapError)
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		_ = unix.Close(fd)
		return nil, appErr.Wrap(err, appErr.MapError)
	}

	data, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Close(fd)
		return nil, appErr.Wrap(err, appErr.MapError)
	}

	return &Region{
		file: os.NewFile(uintptr(fd), "udf-region"),
		data: data,
		size: int(size),
	}, nil
}

// OpenRegion maps an inherited region descriptor in the current process.
// Used by the worker; the descriptor stays owned by the returned Region.
func OpenRegion(fd uintptr, size uint64, writable bool) (*Region, error) {
	if size == 0 {
		return nil, appErr.New(appErr.MapError).WithMessage("shared region size must be non-zero")
	}

	prot := unix.PROT_READ
	if writable {
		prot |= unix.PROT_WRITE
	}
	data, err := unix.Mmap(int(fd), 0, int(size), prot, unix.MAP_SHARED)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.MapError)
	}

	return &Region{
		file: os.NewFile(fd, "udf-region"),
		data: data,
		size: int(size),
	}, nil
}

// Bytes returns the mapped memory.
func (r *Region) Bytes() []byte {
	return r.data
}

// Size returns the region length in bytes.
func (r *Region) Size() int {
	return r.size
}

// File exposes the backing descriptor for inheritance by a child process.
func (r *Region) File() *os.File {
	return r.file
}

// Close unmaps the region and closes the backing descriptor.
func (r *Region) Close() error {
	var first error
	if r.data != nil {
		if err := unix.Munmap(r.data); err != nil {
			first = err
		}
		r.data = nil
	}
	if r.file != nil {
		if err := r.file.Close(); err != nil && first == nil {
			first = err
		}
		r.file = nil
	}
	return first
}
