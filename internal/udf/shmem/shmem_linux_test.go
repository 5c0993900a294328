//go:build linux

package shmem_test

import (
	"bytes"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/junefish/hdf5-udf/internal/udf/shmem"
)

func TestCreate(t *testing.T) {
	region, err := shmem.Create(4096)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	defer region.Close()

	if region.Size() != 4096 {
		t.Errorf("Size() = %d, want 4096", region.Size())
	}
	buf := region.Bytes()
	if len(buf) != 4096 {
		t.Fatalf("Bytes() length = %d, want 4096", len(buf))
	}
	copy(buf, []byte("shared"))
	if !bytes.Equal(region.Bytes()[:6], []byte("shared")) {
		t.Error("written bytes not visible through the mapping")
	}
}

func TestCreateZeroSize(t *testing.T) {
	if _, err := shmem.Create(0); err == nil {
		t.Fatal("expected error for zero-size region")
	}
}

func TestOpenRegionSharesMemory(t *testing.T) {
	region, err := shmem.Create(64)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	defer region.Close()

	dupFd, err := unix.Dup(int(region.File().Fd()))
	if err != nil {
		t.Fatalf("dup: %v", err)
	}
	view, err := shmem.OpenRegion(uintptr(dupFd), 64, false)
	if err != nil {
		t.Fatalf("OpenRegion() error = %v", err)
	}
	defer view.Close()

	region.Bytes()[0] = 0x5A
	if view.Bytes()[0] != 0x5A {
		t.Error("write through creator mapping not visible in second mapping")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	region, err := shmem.Create(16)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := region.Close(); err != nil {
		t.Fatalf("first Close() error = %v", err)
	}
	if err := region.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
