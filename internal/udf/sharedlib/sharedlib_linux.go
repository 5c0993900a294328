//go:build linux

// Package sharedlib loads compiled UDF shared objects and resolves their
// exported symbols.
package sharedlib

import (
	"github.com/ebitengine/purego"

	appErr "github.com/junefish/hdf5-udf/pkg/errors"
)

// Library is an open handle to a shared object.
type Library struct {
	handle uintptr
}

// Open loads the shared object at path. RTLD_GLOBAL is required so that the
// runtime tables declared by the template are visible to the UDF itself.
func Open(path string) (*Library, error) {
	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.LoadError, "open shared object %s: %v", path, err)
	}
	return &Library{handle: handle}, nil
}

// Symbol resolves a named symbol. Missing symbols return 0; the caller
// decides whether that is fatal.
func (l *Library) Symbol(name string) uintptr {
	addr, err := purego.Dlsym(l.handle, name)
	if err != nil {
		return 0
	}
	return addr
}

// Close releases the handle.
func (l *Library) Close() error {
	if l.handle == 0 {
		return nil
	}
	err := purego.Dlclose(l.handle)
	l.handle = 0
	return err
}
