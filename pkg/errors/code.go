package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 11000-11999: Codec errors
// 12000-12999: Pack-time errors (assembly, compile, scan)
// 13000-13999: Run-time errors (load, map, fork, sandbox)

const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	Internal      ErrorCode = 10001
	InvalidParams ErrorCode = 10002
	NotFound      ErrorCode = 10003
	Timeout       ErrorCode = 10004

	// Validation errors (10300-10399)
	ValidationFailed   ErrorCode = 10300
	InvalidValue       ErrorCode = 10301
	RequiredFieldEmpty ErrorCode = 10302

	// ========== Codec Errors (11000-11999) ==========

	CodecError           ErrorCode = 11000
	CodecEmptyInput      ErrorCode = 11001
	CodecTruncatedBlob   ErrorCode = 11002
	CodecLengthMismatch  ErrorCode = 11003
	CodecCorruptedStream ErrorCode = 11004

	// ========== Pack-time Errors (12000-12999) ==========

	// Assembly (12000-12099)
	AssemblyError      ErrorCode = 12000
	PlaceholderMissing ErrorCode = 12001
	TemplateUnreadable ErrorCode = 12002

	// Compile (12100-12199)
	CompileError     ErrorCode = 12100
	CompilerNotFound ErrorCode = 12101
	ArtifactMissing  ErrorCode = 12102

	// Scan (12200-12299)
	ScanError ErrorCode = 12200

	// ========== Run-time Errors (13000-13999) ==========

	// Loader (13000-13099)
	LoadError     ErrorCode = 13000
	SymbolMissing ErrorCode = 13001

	// Shared region (13100-13199)
	MapError ErrorCode = 13100

	// Process (13200-13299)
	ForkError ErrorCode = 13200

	// Sandbox (13300-13399)
	SandboxError        ErrorCode = 13300
	PolicyInvalid       ErrorCode = 13301
	FilterInstallFailed ErrorCode = 13302
)

// errorMessages maps error codes to their default messages
var errorMessages = map[ErrorCode]string{
	Success:       "Success",
	Internal:      "Internal error",
	InvalidParams: "Invalid parameters",
	NotFound:      "Not found",
	Timeout:       "Operation timed out",

	ValidationFailed:   "Validation failed",
	InvalidValue:       "Invalid value",
	RequiredFieldEmpty: "Required field is empty",

	CodecError:           "Codec failure",
	CodecEmptyInput:      "Codec input is empty",
	CodecTruncatedBlob:   "Blob is shorter than its trailer",
	CodecLengthMismatch:  "Decompressed length does not match trailer",
	CodecCorruptedStream: "Compressed stream is corrupted",

	AssemblyError:      "UDF assembly failed",
	PlaceholderMissing: "Template placeholder not found",
	TemplateUnreadable: "Template file is unreadable",

	CompileError:     "UDF compilation failed",
	CompilerNotFound: "System compiler not found",
	ArtifactMissing:  "Compiler produced no output artifact",

	ScanError: "Dataset reference scan failed",

	LoadError:     "Shared object load failed",
	SymbolMissing: "Required symbol not exported",

	MapError: "Shared region allocation failed",

	ForkError: "Worker process creation failed",

	SandboxError:        "Sandbox initialization failed",
	PolicyInvalid:       "Sandbox policy is invalid",
	FilterInstallFailed: "Seccomp filter install failed",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}
