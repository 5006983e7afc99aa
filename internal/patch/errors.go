package patch

import (
	"fmt"
	"strings"
)

// Code classifies a validation error.
type Code string

const (
	CodeDuplicateID          Code = "duplicate_id"
	CodeUnresolvedEndpoint   Code = "unresolved_endpoint"
	CodeCyclicConnection     Code = "cyclic_connection"
	CodeUnresolvedTarget     Code = "unresolved_target"
	CodeMacroOutOfRange      Code = "macro_out_of_range"
	CodeUnknownMacro         Code = "unknown_macro"
	CodeUnknownNodeType      Code = "unknown_node_type"
	CodeUnknownModulatorType Code = "unknown_modulator_type"
	CodeUnknownClock         Code = "unknown_clock"
	CodeInvalidValue         Code = "invalid_value"
	CodeTooManyNodes         Code = "too_many_nodes"
	CodeEventRateExceeded    Code = "event_rate_exceeded"
	CodePatchTooLarge        Code = "patch_too_large"
	CodeDecode               Code = "decode"
	CodeSubpatch             Code = "subpatch"
)

// ValidationError is one problem found in a patch. Path points into the
// document, e.g. "nodes[2].params.frequency".
type ValidationError struct {
	Code    Code   `json:"code"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Code, e.Path, e.Message)
}

// ValidationErrors is the complete list of problems of a rejected patch.
type ValidationErrors []ValidationError

func (es ValidationErrors) Error() string {
	msgs := make([]string, len(es))
	for i, e := range es {
		msgs[i] = e.Error()
	}
	return "patch: " + strings.Join(msgs, "; ")
}

// Has reports whether any error carries code.
func (es ValidationErrors) Has(code Code) bool {
	for _, e := range es {
		if e.Code == code {
			return true
		}
	}
	return false
}

func (es *ValidationErrors) add(code Code, path, format string, args ...any) {
	*es = append(*es, ValidationError{Code: code, Path: path, Message: fmt.Sprintf(format, args...)})
}
