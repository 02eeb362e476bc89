// Package spec parses provisioning specification strings.
//
// Grammar:
//
//	scheme:path[#filter][@priority][@start|@nostart][@update|@noupdate]
//
// Option tokens may appear in any order. Options begin after the last '/' of
// the text after the scheme, at the first '@' that is followed only by option
// tokens, so '@' characters in URL user info are kept as part of the path.
// Parsing is purely lexical.
package spec

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/openfroyo/provision/pkg/engine"
)

// Parser turns raw specification strings into descriptors.
type Parser struct {
	schemes *SchemeTable
}

// NewParser creates a parser accepting the schemes in table.
// A nil table means DefaultSchemes.
func NewParser(table *SchemeTable) *Parser {
	if table == nil {
		table = DefaultSchemes()
	}
	return &Parser{schemes: table}
}

var defaultParser = NewParser(nil)

// Parse parses raw with the built-in scheme table.
func Parse(raw string) (Descriptor, error) {
	return defaultParser.Parse(raw)
}

// Parse parses raw into a Descriptor. All failures are malformed specification errors.
func (p *Parser) Parse(raw string) (Descriptor, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Descriptor{}, malformed(raw, "empty specification", nil)
	}

	i := strings.Index(s, ":")
	if i <= 0 {
		return Descriptor{}, malformed(raw, "missing scheme prefix", nil)
	}
	scheme := s[:i]
	rule, ok := p.schemes.Lookup(scheme)
	if !ok {
		return Descriptor{}, malformed(raw, fmt.Sprintf("unregistered scheme %q", scheme), nil)
	}

	body, options := splitOptions(s[i+1:])

	d := Descriptor{Scheme: scheme, Path: body}
	present := false
	if j := strings.Index(body, "#"); j >= 0 {
		d.Path, d.Filter, present = body[:j], body[j+1:], true
	}
	d.Path = strings.TrimSpace(d.Path)
	if d.Path == "" {
		return Descriptor{}, malformed(raw, "empty path", nil)
	}
	if err := checkFilter(rule, d.Filter, present); err != nil {
		return Descriptor{}, malformed(raw, "invalid filter", err)
	}

	if err := applyOptions(&d, options); err != nil {
		return Descriptor{}, malformed(raw, "invalid option", err)
	}
	return d, nil
}

// ParseLine parses a manifest line. When the line does not start with a
// registered scheme and defaultScheme is non-empty, the line is parsed as
// defaultScheme:line.
func (p *Parser) ParseLine(line, defaultScheme string) (Descriptor, error) {
	s := strings.TrimSpace(line)
	if defaultScheme != "" && !p.hasRegisteredScheme(s) {
		s = defaultScheme + ":" + s
	}
	return p.Parse(s)
}

func (p *Parser) hasRegisteredScheme(s string) bool {
	i := strings.Index(s, ":")
	if i <= 0 {
		return false
	}
	_, ok := p.schemes.Lookup(s[:i])
	return ok
}

// splitOptions separates the path (and filter) from the @-options. When the
// last path segment holds several '@', the options start at the first '@'
// after which every token is an option, so "http://user@host@5" keeps the
// user info in the path.
func splitOptions(rest string) (string, []string) {
	from := strings.LastIndex(rest, "/") + 1
	first := strings.Index(rest[from:], "@")
	if first < 0 {
		return rest, nil
	}
	for at := from + first; at < len(rest); at++ {
		if rest[at] != '@' || (at > 0 && rest[at-1] == '@') {
			continue
		}
		if options := strings.Split(rest[at+1:], "@"); allOptions(options) {
			return rest[:at], options
		}
	}
	at := from + first
	return rest[:at], strings.Split(rest[at+1:], "@")
}

func allOptions(tokens []string) bool {
	for _, token := range tokens {
		switch token = strings.TrimSpace(token); token {
		case OptionStart, OptionNoStart, OptionUpdate, OptionNoUpdate:
		default:
			if !isDigits(token) {
				return false
			}
		}
	}
	return true
}

func applyOptions(d *Descriptor, options []string) error {
	for _, opt := range options {
		token := strings.TrimSpace(opt)
		switch token {
		case "":
			return fmt.Errorf("empty option")
		case OptionStart, OptionNoStart:
			if d.AutoStart != nil {
				return fmt.Errorf("start option given more than once")
			}
			d.AutoStart = engine.Bool(token == OptionStart)
		case OptionUpdate, OptionNoUpdate:
			if d.AutoUpdate != nil {
				return fmt.Errorf("update option given more than once")
			}
			d.AutoUpdate = engine.Bool(token == OptionUpdate)
		default:
			if !isDigits(token) {
				return fmt.Errorf("unrecognized option %q", token)
			}
			if d.Priority != nil {
				return fmt.Errorf("priority given more than once")
			}
			level, err := strconv.Atoi(token)
			if err != nil {
				return fmt.Errorf("priority %q: %w", token, err)
			}
			if level < 1 {
				return fmt.Errorf("priority must be at least 1, got %d", level)
			}
			d.Priority = engine.Int(level)
		}
	}
	return nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func malformed(raw, message string, err error) *engine.Error {
	return engine.NewMalformedSpecificationError(message, err).WithSpec(raw)
}
