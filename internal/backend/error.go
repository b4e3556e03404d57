package backend

import "fmt"

// Code is one of the backend's well-known negative sentinel return values,
// translated into a typed error. The numeric values match the backend ABI
// header exactly so a raw return value can be cast directly into a Code.
type Code int32

const (
	CodeUnclassified  Code = -11
	CodeNoDevice      Code = -12
	CodeNoElement     Code = -13
	CodeNullPointer   Code = -14
	CodeInvalidFormat Code = -15
	CodeParseFailed   Code = -16
	CodeOutOfBound    Code = -17
	CodeFileNotFound  Code = -18
	CodeEnvMissing    Code = -19
	CodeReadFailed    Code = -20
	CodeWriteFailed   Code = -21
	CodeAttrNotSet    Code = -22
)

func (c Code) String() string {
	switch c {
	case CodeUnclassified:
		return "unclassified"
	case CodeNoDevice:
		return "no_device"
	case CodeNoElement:
		return "no_element"
	case CodeNullPointer:
		return "null_pointer"
	case CodeInvalidFormat:
		return "invalid_format"
	case CodeParseFailed:
		return "parse_failed"
	case CodeOutOfBound:
		return "out_of_bound"
	case CodeFileNotFound:
		return "file_not_found"
	case CodeEnvMissing:
		return "env_missing"
	case CodeReadFailed:
		return "read_failed"
	case CodeWriteFailed:
		return "write_failed"
	case CodeAttrNotSet:
		return "attr_not_set"
	default:
		return fmt.Sprintf("backend.Code(%d)", int32(c))
	}
}

// codeFromSentinel maps a raw negative return value from the ABI onto a
// Code, falling back to Unclassified for any value the header doesn't name
// (the backend is free to add sentinels we don't yet know about).
func codeFromSentinel(v int64) Code {
	switch Code(v) {
	case CodeNoDevice, CodeNoElement, CodeNullPointer, CodeInvalidFormat,
		CodeParseFailed, CodeOutOfBound, CodeFileNotFound, CodeEnvMissing,
		CodeReadFailed, CodeWriteFailed, CodeAttrNotSet:
		return Code(v)
	default:
		return CodeUnclassified
	}
}

// Error is returned by every Backend method that can fail. Op names the ABI
// call that failed; Code classifies why.
type Error struct {
	Op   string
	Code Code
}

func (e *Error) Error() string {
	return fmt.Sprintf("backend: %s: %s", e.Op, e.Code)
}

// Is lets errors.Is(err, backend.ErrAttrNotSet) and similar sentinel
// comparisons work by matching on Code alone, ignoring Op.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// ErrAttrNotSet is the sentinel callers compare against to treat an optional
// field (ROM, name, description) as absent rather than as a hard failure.
var ErrAttrNotSet = &Error{Code: CodeAttrNotSet}

func errFor(op string, raw int64) error {
	if raw >= 0 {
		return nil
	}
	return &Error{Op: op, Code: codeFromSentinel(raw)}
}
