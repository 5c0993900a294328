// Package dataset defines descriptors for UDF input and output datasets.
package dataset

import (
	appErr "github.com/junefish/hdf5-udf/pkg/errors"
)

// storageSizes maps symbolic datatype tags to their element size in bytes.
// The "string" tag is variable-width; its storage size must come from the
// descriptor itself.
var storageSizes = map[string]uint64{
	"int8":    1,
	"uint8":   1,
	"int16":   2,
	"uint16":  2,
	"int32":   4,
	"uint32":  4,
	"int64":   8,
	"uint64":  8,
	"float32": 4,
	"float64": 8,
}

// Info describes one dataset handed to or produced by a UDF.
//
// Data holds element values in row-major order. For the output dataset the
// buffer is writable and must span exactly Room() bytes; input buffers are
// read-only from the UDF's perspective.
type Info struct {
	Name        string
	Datatype    string
	Dims        []uint64
	StorageSize uint64
	Data        []byte
}

// New creates a descriptor, resolving the storage size from the datatype tag.
// The variable-width "string" tag resolves to no size and fails validation.
func New(name, datatype string, dims []uint64) (Info, error) {
	info := Info{
		Name:        name,
		Datatype:    datatype,
		Dims:        dims,
		StorageSize: storageSizes[datatype],
	}
	if err := info.Validate(); err != nil {
		return Info{}, err
	}
	return info, nil
}

// GridSize returns the total number of elements across all dimensions.
func (d Info) GridSize() uint64 {
	if len(d.Dims) == 0 {
		return 0
	}
	size := uint64(1)
	for _, dim := range d.Dims {
		size *= dim
	}
	return size
}

// Room returns the byte length of the backing buffer: grid size times the
// element storage size.
func (d Info) Room() uint64 {
	return d.GridSize() * d.StorageSize
}

// Validate checks that the descriptor is well formed.
func (d Info) Validate() error {
	if d.Name == "" {
		return appErr.New(appErr.RequiredFieldEmpty).WithMessage("dataset name is required")
	}
	if _, known := storageSizes[d.Datatype]; !known && d.Datatype != "string" {
		return appErr.Newf(appErr.InvalidValue, "unknown datatype %q", d.Datatype)
	}
	if len(d.Dims) == 0 {
		return appErr.New(appErr.InvalidValue).WithMessage("dataset rank must be at least 1")
	}
	for _, dim := range d.Dims {
		if dim == 0 {
			return appErr.New(appErr.InvalidValue).WithMessage("dataset dimensions must be non-zero")
		}
	}
	if d.StorageSize == 0 {
		return appErr.Newf(appErr.InvalidValue, "storage size is required for datatype %q", d.Datatype)
	}
	return nil
}

// SizeOf returns the element size for a scalar datatype tag, or 0 when the
// tag is unknown or variable-width.
func SizeOf(datatype string) uint64 {
	return storageSizes[datatype]
}
