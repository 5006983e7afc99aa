package patch

import (
	"encoding/json"
	"fmt"
)

type LoadOptions struct {
	Limits   Limits
	Resolver Resolver
}

// Loaded is a validated patch: the document as authored and its flattened
// form ready for compilation.
type Loaded struct {
	Doc  *Patch
	Flat *Patch
}

// Load decodes and validates a serialized patch. On failure the error is
// a ValidationErrors listing every problem found.
func Load(data []byte, opts LoadOptions) (*Loaded, error) {
	if err := checkSize(len(data), opts.Limits); err != nil {
		return nil, err
	}
	doc, err := Decode(data)
	if err != nil {
		return nil, ValidationErrors{{Code: CodeDecode, Message: err.Error()}}
	}
	return Prepare(doc, opts)
}

// Prepare validates an already decoded document. The document is copied;
// later changes by the caller do not affect the result.
func Prepare(doc *Patch, opts LoadOptions) (*Loaded, error) {
	if doc == nil {
		return nil, ValidationErrors{{Code: CodeDecode, Message: "no patch"}}
	}
	if opts.Limits.MaxPatchBytes > 0 {
		data, err := json.Marshal(doc)
		if err != nil {
			return nil, ValidationErrors{{Code: CodeDecode, Message: err.Error()}}
		}
		if err := checkSize(len(data), opts.Limits); err != nil {
			return nil, err
		}
	}
	doc = doc.Clone()
	flat, errs := Flatten(doc, opts.Resolver)
	if len(errs) > 0 {
		return nil, errs
	}
	if errs := Validate(flat, opts.Limits); len(errs) > 0 {
		return nil, errs
	}
	return &Loaded{Doc: doc, Flat: flat}, nil
}

func checkSize(n int, limits Limits) error {
	if limits.MaxPatchBytes <= 0 || n <= limits.MaxPatchBytes {
		return nil
	}
	return ValidationErrors{{
		Code:    CodePatchTooLarge,
		Message: fmt.Sprintf("patch is %d bytes, limit is %d", n, limits.MaxPatchBytes),
	}}
}
