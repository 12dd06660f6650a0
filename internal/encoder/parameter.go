package encoder

import (
	"fmt"
	"strconv"
)

// ParamType tags which variant a [Parameter] holds.
type ParamType string

const (
	ParamString ParamType = "string"
	ParamNumber ParamType = "number"
	ParamBool   ParamType = "bool"
)

// Parameter is one command-line option in canonical form. Only the fields
// of the variant named by Type are meaningful; Delimiter is unused for
// booleans.
type Parameter struct {
	Type      ParamType `yaml:"type"`
	Prefix    string    `yaml:"prefix"`
	Delimiter string    `yaml:"delimiter,omitempty"`
	Text      string    `yaml:"text,omitempty"`
	Number    float64   `yaml:"number,omitempty"`
	Flag      bool      `yaml:"flag,omitempty"`
}

// String returns a string-valued parameter such as "--tune=ssim".
func String(prefix, delimiter, value string) Parameter {
	return Parameter{Type: ParamString, Prefix: prefix, Delimiter: delimiter, Text: value}
}

// Number returns a numeric parameter such as "--crf 30".
func Number(prefix, delimiter string, value float64) Parameter {
	return Parameter{Type: ParamNumber, Prefix: prefix, Delimiter: delimiter, Number: value}
}

// Bool returns a switch that is rendered only when value is true.
func Bool(prefix string, value bool) Parameter {
	return Parameter{Type: ParamBool, Prefix: prefix, Flag: value}
}

// Matches reports whether p and o are the same kind of option, ignoring the
// value: equal type and prefix, and for non-boolean options equal delimiter.
func (p Parameter) Matches(o Parameter) bool {
	if p.Type != o.Type || p.Prefix != o.Prefix {
		return false
	}
	if p.Type == ParamBool {
		return true
	}
	return p.Delimiter == o.Delimiter
}

// Value returns the parameter's value as text.
func (p Parameter) Value() string {
	switch p.Type {
	case ParamNumber:
		return strconv.FormatFloat(p.Number, 'f', -1, 64)
	case ParamBool:
		return strconv.FormatBool(p.Flag)
	default:
		return p.Text
	}
}

// Render formats the parameter under name as a single token, e.g.
// "--crf=30". A false boolean renders as the empty string.
func (p Parameter) Render(name string) string {
	if p.Type == ParamBool {
		if !p.Flag {
			return ""
		}
		return p.Prefix + name
	}
	return p.Prefix + name + p.Delimiter + p.Value()
}

// Args returns the argv tokens for the parameter under name. A space
// delimiter produces two tokens; any other delimiter produces one.
func (p Parameter) Args(name string) []string {
	switch {
	case p.Type == ParamBool:
		if !p.Flag {
			return nil
		}
		return []string{p.Prefix + name}
	case p.Delimiter == " ":
		return []string{p.Prefix + name, p.Value()}
	default:
		return []string{p.Render(name)}
	}
}

// Validate reports structural problems with the parameter.
func (p Parameter) Validate(name string) error {
	switch p.Type {
	case ParamString, ParamNumber:
		if p.Delimiter == "" {
			return fmt.Errorf("parameter %q: missing delimiter", name)
		}
	case ParamBool:
	default:
		return fmt.Errorf("parameter %q: unknown type %q", name, p.Type)
	}
	if name == "" {
		return fmt.Errorf("parameter with prefix %q has no name", p.Prefix)
	}
	return nil
}
