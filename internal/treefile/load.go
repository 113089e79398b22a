package treefile

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/go-playground/validator/v10"
	yamlv3 "gopkg.in/yaml.v3"
)

var (
	// ErrInvalid wraps every validation failure of a tree file.
	ErrInvalid = errors.New("treefile: invalid")

	validate     *validator.Validate
	validateOnce sync.Once
)

func newValidate() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterStructValidation(validateFile, File{})
		validate.RegisterStructValidation(validateElement, Element{})
		validate.RegisterStructValidation(validatePaging, Paging{})
	})
	return validate
}

func validateFile(sl validator.StructLevel) {
	f := sl.Current().Interface().(File)
	if (f.Root == nil) == (f.Batch == nil) {
		sl.ReportError(f.Root, "Root", "root", "root_xor_batch", "")
	}
}

// validateElement requires exactly one of field, group and fragment, and
// keeps paging and params on groups. Groups and fragments need children.
func validateElement(sl validator.StructLevel) {
	e := sl.Current().Interface().(Element)
	set := 0
	for _, name := range []string{e.Field, e.Group, e.Fragment} {
		if name != "" {
			set++
		}
	}
	if set != 1 {
		sl.ReportError(e.Field, "Field", "field", "exactly_one_name", "")
		return
	}
	if e.Field != "" && (len(e.Children) > 0 || len(e.Params) > 0 || e.Paging != nil) {
		sl.ReportError(e.Children, "Children", "children", "field_is_leaf", "")
	}
	if e.Field == "" && len(e.Children) == 0 {
		sl.ReportError(e.Children, "Children", "children", "required_for_selection", "")
	}
	if e.Fragment != "" && (len(e.Params) > 0 || e.Paging != nil) {
		sl.ReportError(e.Params, "Params", "params", "fragment_has_no_args", "")
	}
}

func validatePaging(sl validator.StructLevel) {
	p := sl.Current().Interface().(Paging)
	if (p.Mode == "first" || p.Mode == "last") && p.Count < 1 {
		sl.ReportError(p.Count, "Count", "count", "required_with_mode", p.Mode)
	}
	if p.Cursor && p.Mode != "first" {
		sl.ReportError(p.Cursor, "Cursor", "cursor", "cursor_needs_first", "")
	}
}

// Load reads and validates the tree file at path.
func Load(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("treefile: %w", err)
	}
	f, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse decodes and validates a tree file. Unknown top-level keys are
// rejected.
func Parse(b []byte) (*File, error) {
	dec := yamlv3.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("treefile: decode: %w", err)
	}
	if err := newValidate().Struct(&f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return &f, nil
}
