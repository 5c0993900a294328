package executor

import "testing"

func validRequest() WorkerRequest {
	return WorkerRequest{
		ObjectPath: "/tmp/udf-test.so",
		Output: WorkerDataset{
			Name:        "virtual",
			Datatype:    "float64",
			Dims:        []uint64{10},
			StorageSize: 8,
		},
		Inputs: []WorkerDataset{{
			Name:        "source",
			Datatype:    "int32",
			Dims:        []uint64{10},
			StorageSize: 4,
			Offset:      0,
			Size:        40,
		}},
		OutputSize: 80,
		InputSize:  40,
	}
}

func TestWorkerRequestValidate(t *testing.T) {
	req := validRequest()
	if err := req.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestWorkerRequestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*WorkerRequest)
	}{
		{"empty object path", func(r *WorkerRequest) { r.ObjectPath = "" }},
		{"zero output size", func(r *WorkerRequest) { r.OutputSize = 0 }},
		{"unnamed output", func(r *WorkerRequest) { r.Output.Name = "" }},
		{"input past region end", func(r *WorkerRequest) { r.Inputs[0].Offset = 8 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)
			if err := req.Validate(); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}
