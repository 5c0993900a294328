package errors_test

import (
	stderrors "errors"
	"os"
	"testing"

	. "github.com/junefish/hdf5-udf/pkg/errors"
)

func TestErrorCode_Message(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want string
	}{
		{Success, "Success"},
		{CodecError, "Codec failure"},
		{PlaceholderMissing, "Template placeholder not found"},
		{LoadError, "Shared object load failed"},
		{FilterInstallFailed, "Seccomp filter install failed"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.code.Message(); got != tt.want {
				t.Errorf("Message() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNew(t *testing.T) {
	err := New(CompileError)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if err.Code != CompileError {
		t.Errorf("Code = %v, want %v", err.Code, CompileError)
	}
	if err.Error() != CompileError.Message() {
		t.Errorf("Error() = %v, want %v", err.Error(), CompileError.Message())
	}
}

func TestNewf(t *testing.T) {
	err := Newf(PolicyInvalid, "unknown arg op %q", "gt")
	if err.Code != PolicyInvalid {
		t.Errorf("Code = %v, want %v", err.Code, PolicyInvalid)
	}
	if err.Error() != `unknown arg op "gt"` {
		t.Errorf("Error() = %v", err.Error())
	}
}

func TestWrap(t *testing.T) {
	cause := os.ErrNotExist
	err := Wrap(cause, TemplateUnreadable)
	if err.Code != TemplateUnreadable {
		t.Errorf("Code = %v, want %v", err.Code, TemplateUnreadable)
	}
	if !stderrors.Is(err, os.ErrNotExist) {
		t.Error("wrapped cause lost")
	}
}

func TestGetCode(t *testing.T) {
	if got := GetCode(New(MapError)); got != MapError {
		t.Errorf("GetCode() = %v, want %v", got, MapError)
	}
	if got := GetCode(stderrors.New("plain")); got != Internal {
		t.Errorf("GetCode(plain) = %v, want %v", got, Internal)
	}
	if got := GetCode(nil); got != Success {
		t.Errorf("GetCode(nil) = %v, want %v", got, Success)
	}
}

func TestWithDetail(t *testing.T) {
	err := New(ScanError).WithDetail("source", "udf.cpp")
	if err.Details["source"] != "udf.cpp" {
		t.Errorf("Details = %v", err.Details)
	}
}
