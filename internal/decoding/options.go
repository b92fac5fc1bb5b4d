// Package decoding holds the transcription parameters chosen on the page and
// the rule deciding which of them are visible for a given method.
package decoding

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	MethodGreedy   = "greedy"
	MethodBeam     = "beam search"
	MethodSampling = "sampling"
)

// Methods lists the selector values in display order.
var Methods = []string{MethodGreedy, MethodBeam, MethodSampling}

var ErrInvalidField = errors.New("invalid decoding field")

type Options struct {
	Method      string
	BeamWidth   int
	Patience    float64
	Temperature float64
	BestOf      int
	Language    string
	UseGPU      bool
}

// Visibility says which method-specific fields the form shows.
type Visibility struct {
	Beam     bool
	Sampling bool
}

func VisibilityFor(method string) Visibility {
	switch method {
	case MethodBeam:
		return Visibility{Beam: true}
	case MethodSampling:
		return Visibility{Sampling: true}
	default:
		return Visibility{}
	}
}

// Normalize returns o with every hidden field zeroed.
func (o Options) Normalize() Options {
	v := VisibilityFor(o.Method)
	if !v.Beam {
		o.BeamWidth = 0
		o.Patience = 0
	}
	if !v.Sampling {
		o.BestOf = 0
		o.Temperature = 0
	}
	return o
}

// Field is one multipart form value.
type Field struct {
	Name  string
	Value string
}

// Fields returns the form values in submission order. The method itself is
// not sent; it only governs which fields carry non-zero values.
func (o Options) Fields() []Field {
	gpu := "0"
	if o.UseGPU {
		gpu = "1"
	}
	return []Field{
		{"use_gpu", gpu},
		{"beam_width", strconv.Itoa(o.BeamWidth)},
		{"patience", formatFloat(o.Patience)},
		{"temperature", formatFloat(o.Temperature)},
		{"best_of", strconv.Itoa(o.BestOf)},
		{"language", o.Language},
	}
}

// FromForm reads options from submitted page values. Missing numeric fields
// default to zero; present ones must be non-negative numbers.
func FromForm(values url.Values, defaults Options) (Options, error) {
	o := defaults
	if m := strings.TrimSpace(values.Get("method")); m != "" {
		o.Method = m
	}
	if lang := strings.TrimSpace(values.Get("language")); lang != "" {
		o.Language = lang
	}
	o.UseGPU = parseBool(values.Get("use_gpu"))

	var err error
	if o.BeamWidth, err = parseInt(values, "beam_width"); err != nil {
		return Options{}, err
	}
	if o.BestOf, err = parseInt(values, "best_of"); err != nil {
		return Options{}, err
	}
	if o.Patience, err = parseFloat(values, "patience"); err != nil {
		return Options{}, err
	}
	if o.Temperature, err = parseFloat(values, "temperature"); err != nil {
		return Options{}, err
	}
	return o, nil
}

func parseBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "on", "yes":
		return true
	default:
		return false
	}
}

func parseInt(values url.Values, name string) (int, error) {
	raw := strings.TrimSpace(values.Get(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidField, name, raw)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: %s must not be negative", ErrInvalidField, name)
	}
	return n, nil
}

func parseFloat(values url.Values, name string) (float64, error) {
	raw := strings.TrimSpace(values.Get(name))
	if raw == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not a number", ErrInvalidField, name, raw)
	}
	if f < 0 {
		return 0, fmt.Errorf("%w: %s must not be negative", ErrInvalidField, name)
	}
	return f, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
