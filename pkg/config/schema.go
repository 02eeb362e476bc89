package config

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cueyaml "cuelang.org/go/encoding/yaml"
)

// schemaSource is the closed definition every configuration document must
// satisfy. Durations are Go duration strings or integer nanoseconds.
const schemaSource = `
#Duration: string | int

#ProvisionConfig: {
	defaults?: {
		priority?:   int & >=1
		autostart?:  bool
		autoupdate?: bool
	}
	certificate_check?: bool
	properties?: [string]: string | number | bool
	catalog?: {
		repository_url?:      string
		bootstrap_artifacts?: [...string]
		script_dir?:          string
	}
	store?: path?: string & !=""
	policy?: paths?: [...string]
	ssh?: {
		user?:                     string
		port?:                     int & >=1 & <=65535
		password?:                 string
		private_key_path?:         string
		private_key_passphrase?:   string
		known_hosts_path?:         string
		strict_host_key_checking?: bool
		connection_timeout?:       #Duration
	}
	fetch?: {
		timeout?:          #Duration
		user_agent?:       string
		maven_repository?: string
	}
}
`

// ValidationError describes one schema violation.
type ValidationError struct {
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

func (e ValidationError) String() string {
	var b strings.Builder
	if e.File != "" {
		b.WriteString(e.File)
		if e.Line > 0 {
			fmt.Fprintf(&b, ":%d:%d", e.Line, e.Column)
		}
		b.WriteString(": ")
	}
	if e.Path != "" {
		b.WriteString(e.Path)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	return b.String()
}

// SchemaError is returned when a document does not satisfy #ProvisionConfig.
type SchemaError struct {
	Errors []ValidationError
}

func (e *SchemaError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, ve := range e.Errors {
		msgs[i] = ve.String()
	}
	return "invalid configuration: " + strings.Join(msgs, "; ")
}

// Schema validates YAML documents against #ProvisionConfig.
type Schema struct {
	ctx *cue.Context
	def cue.Value
}

// NewSchema compiles the configuration schema.
func NewSchema() (*Schema, error) {
	ctx := cuecontext.New()
	root := ctx.CompileString(schemaSource, cue.Filename("provision.cue"))
	if err := root.Err(); err != nil {
		return nil, fmt.Errorf("compile configuration schema: %w", err)
	}
	def := root.LookupPath(cue.ParsePath("#ProvisionConfig"))
	if err := def.Err(); err != nil {
		return nil, fmt.Errorf("lookup configuration schema: %w", err)
	}
	return &Schema{ctx: ctx, def: def}, nil
}

// Validate checks the YAML document data. source names the document in
// error positions.
func (s *Schema) Validate(data []byte, source string) error {
	file, err := cueyaml.Extract(source, data)
	if err != nil {
		return &SchemaError{Errors: convertCUEErrors(err, source)}
	}
	doc := s.ctx.BuildFile(file)
	if err := doc.Err(); err != nil {
		return &SchemaError{Errors: convertCUEErrors(err, source)}
	}
	if err := s.def.Unify(doc).Validate(cue.Concrete(true)); err != nil {
		return &SchemaError{Errors: convertCUEErrors(err, source)}
	}
	return nil
}

// convertCUEErrors flattens a CUE error list, preferring positions inside
// the validated document over positions in the schema.
func convertCUEErrors(err error, source string) []ValidationError {
	var out []ValidationError
	for _, e := range cueerrors.Errors(err) {
		ve := ValidationError{
			Path:    strings.Join(e.Path(), "."),
			Message: strings.TrimSpace(cueerrors.Details(e, nil)),
		}
		if format, args := e.Msg(); format != "" {
			ve.Message = fmt.Sprintf(format, args...)
		}
		for _, pos := range cueerrors.Positions(e) {
			if pos.Filename() != source {
				continue
			}
			ve.File = pos.Filename()
			ve.Line = pos.Line()
			ve.Column = pos.Column()
			break
		}
		if ve.File == "" {
			ve.File = source
		}
		out = append(out, ve)
	}
	if len(out) == 0 {
		out = append(out, ValidationError{File: source, Message: err.Error()})
	}
	return out
}
