package dataset_test

import (
	"testing"

	"github.com/junefish/hdf5-udf/internal/udf/dataset"
)

func TestNew(t *testing.T) {
	info, err := dataset.New("temperature", "float64", []uint64{100, 50})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if info.StorageSize != 8 {
		t.Errorf("StorageSize = %d, want 8", info.StorageSize)
	}
	if got := info.GridSize(); got != 5000 {
		t.Errorf("GridSize() = %d, want 5000", got)
	}
	if got := info.Room(); got != 40000 {
		t.Errorf("Room() = %d, want 40000", got)
	}
}

func TestNewRejectsBadDescriptors(t *testing.T) {
	tests := []struct {
		name     string
		dsName   string
		datatype string
		dims     []uint64
	}{
		{"empty name", "", "int32", []uint64{10}},
		{"unknown datatype", "grid", "quaternion", []uint64{10}},
		{"rank zero", "grid", "int32", nil},
		{"zero extent", "grid", "int32", []uint64{10, 0}},
		{"string without storage size", "labels", "string", []uint64{10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := dataset.New(tt.dsName, tt.datatype, tt.dims); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestValidateStringWithExplicitSize(t *testing.T) {
	info := dataset.Info{
		Name:        "labels",
		Datatype:    "string",
		Dims:        []uint64{16},
		StorageSize: 32,
	}
	if err := info.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if got := info.Room(); got != 512 {
		t.Errorf("Room() = %d, want 512", got)
	}
}

func TestSizeOf(t *testing.T) {
	tests := []struct {
		datatype string
		want     uint64
	}{
		{"int8", 1},
		{"uint16", 2},
		{"float32", 4},
		{"int64", 8},
		{"string", 0},
		{"bogus", 0},
	}

	for _, tt := range tests {
		t.Run(tt.datatype, func(t *testing.T) {
			if got := dataset.SizeOf(tt.datatype); got != tt.want {
				t.Errorf("SizeOf(%q) = %d, want %d", tt.datatype, got, tt.want)
			}
		})
	}
}
