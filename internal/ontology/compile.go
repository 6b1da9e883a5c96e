package ontology

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
)

// schema constrains ontology documents before they are decoded. Definitions
// are closed, so misspelled fields are rejected with a position.
const schema = `
#Property: {
	type:        "string" | "integer" | "long" | "double" | "boolean" | "date" | "timestamp" | "geopoint" | "geoshape" | "vector"
	array?:      bool
	analyzed?:   bool
	dimension?:  int & >0
	similarity?: "cosine" | "euclidean" | "dot_product"
}

#Cardinality: "ONE_TO_ONE" | "ONE_TO_MANY" | "MANY_TO_MANY"

#Ontology: {
	objectTypes?: [string]: {
		primaryKey: string
		properties: [string]: #Property
		implements?: [string]: {
			properties?: [string]: string
			links?: [string]: string
		}
	}
	interfaces?: [string]: {
		extends?: [...string]
		properties?: [...string]
		links?: [...string]
	}
	sharedProperties?: [string]: #Property
	linkTypes?: [string]: {
		source:      string
		target:      string
		cardinality: #Cardinality | *"MANY_TO_MANY"
	}
	softLinkTypes?: [string]: {
		source:         string
		sourceProperty: string
		target:         string
		targetProperty: string
	}
	interfaceLinkTypes?: [string]: {
		interface:         string
		targetInterface?:  string
		targetObjectType?: string
		cardinality?:      #Cardinality
	}
}
`

// CompileError is a decoding error with its CUE source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// CompileString compiles a CUE ontology document into a validated catalog.
func CompileString(src, filename string) (*Catalog, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename(filename))
	return CompileValue(v)
}

// LoadDir loads every CUE file of the package in dir and compiles it.
func LoadDir(dir string) (*Catalog, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("ontology directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("ontology path %s is not a directory", dir)
	}
	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances in %s", dir)
	}
	if err := instances[0].Err; err != nil {
		return nil, fmt.Errorf("loading CUE files: %w", err)
	}
	return CompileValue(ctx.BuildInstance(instances[0]))
}

// Load compiles the ontology at path, which is either a single CUE file or
// a directory holding a CUE package.
func Load(path string) (*Catalog, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("ontology: %w", err)
	}
	if info.IsDir() {
		return LoadDir(path)
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ontology: %w", err)
	}
	return CompileString(string(src), path)
}

// CompileValue decodes and validates an ontology CUE value. All decode and
// validation errors are collected and returned together.
func CompileValue(v cue.Value) (*Catalog, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	def := v.Context().CompileString(schema, cue.Filename("ontology-schema.cue")).
		LookupPath(cue.ParsePath("#Ontology"))
	if err := def.Err(); err != nil {
		return nil, fmt.Errorf("ontology schema: %w", err)
	}
	unified := def.Unify(v)
	if err := unified.Validate(); err != nil {
		return nil, formatCUEError(err)
	}

	c := NewCatalog()
	var errs []error
	decodeSection(unified, "objectTypes", &errs, func(name string, ot ObjectType) {
		ot.APIName = name
		c.AddObjectType(ot)
	})
	decodeSection(unified, "interfaces", &errs, func(name string, it InterfaceType) {
		it.APIName = name
		c.AddInterface(it)
	})
	decodeSection(unified, "sharedProperties", &errs, func(name string, pt PropertyType) {
		c.AddSharedProperty(SharedProperty{APIName: name, Type: pt})
	})
	decodeSection(unified, "linkTypes", &errs, func(name string, lt LinkType) {
		lt.APIName = name
		c.AddLinkType(lt)
	})
	decodeSection(unified, "softLinkTypes", &errs, func(name string, lt SoftLinkType) {
		lt.APIName = name
		c.AddSoftLinkType(lt)
	})
	decodeSection(unified, "interfaceLinkTypes", &errs, func(name string, lt InterfaceLinkType) {
		lt.APIName = name
		c.AddInterfaceLinkType(lt)
	})
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	for _, ve := range Validate(c) {
		errs = append(errs, ve)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return c, nil
}

func decodeSection[T any](v cue.Value, section string, errs *[]error, add func(name string, item T)) {
	sv := v.LookupPath(cue.ParsePath(section))
	if !sv.Exists() {
		return
	}
	iter, err := sv.Fields()
	if err != nil {
		*errs = append(*errs, formatCUEError(err))
		return
	}
	for iter.Next() {
		var item T
		if err := iter.Value().Decode(&item); err != nil {
			*errs = append(*errs, &CompileError{
				Field:   section + "." + iter.Label(),
				Message: err.Error(),
				Pos:     iter.Value().Pos(),
			})
			continue
		}
		add(iter.Label(), item)
	}
}

// formatCUEError converts CUE errors into CompileErrors with positions.
func formatCUEError(err error) error {
	list := cueerrors.Errors(err)
	if len(list) == 0 {
		return err
	}
	out := make([]error, 0, len(list))
	for _, e := range list {
		format, args := e.Msg()
		out = append(out, &CompileError{
			Field:   strings.Join(e.Path(), "."),
			Message: fmt.Sprintf(format, args...),
			Pos:     e.Position(),
		})
	}
	return errors.Join(out...)
}
