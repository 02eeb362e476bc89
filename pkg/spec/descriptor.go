package spec

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/openfroyo/provision/pkg/engine"
)

// Option tokens accepted after the path.
const (
	OptionStart    = "start"
	OptionNoStart  = "nostart"
	OptionUpdate   = "update"
	OptionNoUpdate = "noupdate"
)

// Descriptor is the parsed form of one specification string. Settings are
// left unset when the string does not carry them; defaulting happens in the
// resolvers.
type Descriptor struct {
	// Scheme selects the resolver.
	Scheme string `json:"scheme"`

	// Path is the scheme specific locator.
	Path string `json:"path"`

	// Filter is the #filter segment, empty when absent.
	Filter string `json:"filter,omitempty"`

	engine.Settings
}

// HasFilter reports whether a filter segment was given.
func (d Descriptor) HasFilter() bool {
	return d.Filter != ""
}

// WithPath returns a copy of d pointing at path.
func (d Descriptor) WithPath(path string) Descriptor {
	d.Path = path
	return d
}

// String re-serializes the descriptor in canonical option order.
func (d Descriptor) String() string {
	var b strings.Builder
	b.WriteString(d.Scheme)
	b.WriteByte(':')
	b.WriteString(d.Path)
	if d.Filter != "" {
		b.WriteByte('#')
		b.WriteString(d.Filter)
	}
	if d.Priority != nil {
		b.WriteByte('@')
		b.WriteString(strconv.Itoa(*d.Priority))
	}
	if d.AutoStart != nil {
		if *d.AutoStart {
			b.WriteString("@" + OptionStart)
		} else {
			b.WriteString("@" + OptionNoStart)
		}
	}
	if d.AutoUpdate != nil {
		if *d.AutoUpdate {
			b.WriteString("@" + OptionUpdate)
		} else {
			b.WriteString("@" + OptionNoUpdate)
		}
	}
	return b.String()
}

// ParseFeatureList parses a comma separated list of name[/version] references.
func ParseFeatureList(list string) ([]engine.FeatureRef, error) {
	items := strings.Split(list, ",")
	refs := make([]engine.FeatureRef, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			return nil, fmt.Errorf("empty feature reference in %q", list)
		}
		parts := strings.Split(item, "/")
		if len(parts) > 2 {
			return nil, fmt.Errorf("feature reference %q contains more than one '/'", item)
		}
		ref := engine.FeatureRef{Name: strings.TrimSpace(parts[0])}
		if ref.Name == "" {
			return nil, fmt.Errorf("feature reference %q has no name", item)
		}
		if len(parts) == 2 {
			ref.Version = strings.TrimSpace(parts[1])
			if ref.Version == "" {
				return nil, fmt.Errorf("feature reference %q has an empty version", item)
			}
		}
		refs = append(refs, ref)
	}
	return refs, nil
}
