// Package encoder models an encoder invocation as a kind plus a set of
// named [Parameter] values. Scenes carry an optional Encoder that overrides
// the aggregate's default; the subprocess layer renders it into argv.
package encoder

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Kind identifies the encoder family.
type Kind string

const (
	AOM    Kind = "aom"
	Rav1e  Kind = "rav1e"
	SVTAV1 Kind = "svt-av1"
	VPX    Kind = "vpx"
	X264   Kind = "x264"
	X265   Kind = "x265"
)

// Kinds lists every supported encoder in display order.
var Kinds = []Kind{AOM, Rav1e, SVTAV1, VPX, X264, X265}

// ErrUnknownKind is returned for an encoder kind outside [Kinds].
var ErrUnknownKind = errors.New("unknown encoder")

// ParseKind maps user input to a Kind. "svt" and "svtav1" are accepted
// aliases for svt-av1.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "aom":
		return AOM, nil
	case "rav1e":
		return Rav1e, nil
	case "svt-av1", "svtav1", "svt":
		return SVTAV1, nil
	case "vpx":
		return VPX, nil
	case "x264":
		return X264, nil
	case "x265":
		return X265, nil
	}
	return "", fmt.Errorf("%w %q (use aom, rav1e, svt-av1, vpx, x264 or x265)", ErrUnknownKind, s)
}

// QuantizerRange returns the default [min, max] quantizer search range.
func (k Kind) QuantizerRange() (float64, float64) {
	switch k {
	case AOM, VPX:
		return 15, 55
	case Rav1e:
		return 50, 140
	case SVTAV1:
		return 15, 50
	default: // x264, x265
		return 15, 35
	}
}

// QuantizerName is the parameter name that carries the quantizer.
func (k Kind) QuantizerName() string {
	if k == Rav1e {
		return "qp"
	}
	return "crf"
}

func (k Kind) defaultQuantizer() float64 {
	switch k {
	case AOM, VPX:
		return 31
	case Rav1e:
		return 100
	case SVTAV1:
		return 35
	case X264:
		return 23
	default:
		return 28
	}
}

// psychovisual lists options that bias a metric away from what a probe is
// trying to measure. They are stripped from probe encodes.
var psychovisual = map[Kind]map[string]Parameter{
	AOM:   {"film-grain-table": String("--", "=", "")},
	Rav1e: {"photon-noise-table": String("--", "=", "")},
	SVTAV1: {
		"fgs-table":          String("--", " ", ""),
		"film-grain":         Number("--", " ", 0),
		"film-grain-denoise": Number("--", " ", 0),
		"psy-rd":             Number("--", " ", 0),
		"ac-bias":            Number("--", " ", 0),
	},
}

// Encoder is a concrete encoder configuration.
type Encoder struct {
	Kind   Kind                 `yaml:"kind"`
	Passes int                  `yaml:"passes,omitempty"`
	Params map[string]Parameter `yaml:"params,omitempty"`
}

// New returns an encoder of kind k carrying its default quantizer.
func New(k Kind) Encoder {
	return Encoder{
		Kind:   k,
		Passes: 1,
		Params: map[string]Parameter{
			k.QuantizerName(): Number("-", " ", k.defaultQuantizer()),
		},
	}
}

// Clone returns a deep copy.
func (e Encoder) Clone() Encoder {
	e.Params = maps.Clone(e.Params)
	return e
}

// PassCount returns the number of encoder passes, at least one.
func (e Encoder) PassCount() int {
	if e.Passes < 1 {
		return 1
	}
	return e.Passes
}

// Quantizer returns the configured quantizer, if any.
func (e Encoder) Quantizer() (float64, bool) {
	p, ok := e.Params[e.Kind.QuantizerName()]
	if !ok || p.Type != ParamNumber {
		return 0, false
	}
	return p.Number, true
}

// WithQuantizer returns a copy of e with the quantizer set to q.
func (e Encoder) WithQuantizer(q float64) Encoder {
	out := e.Clone()
	if out.Params == nil {
		out.Params = map[string]Parameter{}
	}
	name := e.Kind.QuantizerName()
	p, ok := out.Params[name]
	if !ok || p.Type != ParamNumber {
		p = Number("-", " ", q)
	}
	p.Number = q
	out.Params[name] = p
	return out
}

// WithParams returns a copy of e with params laid over its own. When reset
// is true the existing parameters are discarded first.
func (e Encoder) WithParams(params map[string]Parameter, reset bool) Encoder {
	out := e.Clone()
	if reset || out.Params == nil {
		out.Params = make(map[string]Parameter, len(params))
	}
	maps.Copy(out.Params, params)
	return out
}

// WithoutPsychovisual returns a copy of e without options that skew quality
// metrics, such as film grain synthesis.
func (e Encoder) WithoutPsychovisual() Encoder {
	out := e.Clone()
	for name, want := range psychovisual[e.Kind] {
		if have, ok := out.Params[name]; ok && have.Matches(want) {
			delete(out.Params, name)
		}
	}
	return out
}

// Names returns parameter names in sorted order.
func (e Encoder) Names() []string {
	return slices.Sorted(maps.Keys(e.Params))
}

// Args renders all parameters into argv tokens in name order.
func (e Encoder) Args() []string {
	var args []string
	for _, name := range e.Names() {
		args = append(args, e.Params[name].Args(name)...)
	}
	return args
}

// Diff returns the names of parameters in e that are new or carry a
// different value than in parent. It is used to show scene overrides.
func (e Encoder) Diff(parent Encoder) []string {
	var changed []string
	for _, name := range e.Names() {
		p := e.Params[name]
		q, ok := parent.Params[name]
		if !ok || !p.Matches(q) || p.Value() != q.Value() {
			changed = append(changed, name)
		}
	}
	return changed
}

// Validate checks the kind and every parameter.
func (e Encoder) Validate() error {
	if !slices.Contains(Kinds, e.Kind) {
		return fmt.Errorf("%w %q", ErrUnknownKind, e.Kind)
	}
	for _, name := range e.Names() {
		if err := e.Params[name].Validate(name); err != nil {
			return fmt.Errorf("%s: %w", e.Kind, err)
		}
	}
	return nil
}
