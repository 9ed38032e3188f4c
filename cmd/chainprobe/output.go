package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

// printer writes command results in the configured format.
type printer struct {
	w      io.Writer
	format string
}

// print renders v as one JSON or YAML document, or calls text for the
// default human-readable form.
func (p printer) print(v interface{}, text func(w io.Writer)) error {
	switch p.format {
	case outputJSON:
		if err := json.NewEncoder(p.w).Encode(v); err != nil {
			return errors.Wrap(err, "encode json")
		}
	case outputYAML:
		enc := yaml.NewEncoder(p.w)
		if err := enc.Encode(v); err != nil {
			return errors.Wrap(err, "encode yaml")
		}
		if err := enc.Close(); err != nil {
			return errors.Wrap(err, "encode yaml")
		}
	default:
		text(p.w)
	}
	return nil
}

func (p printer) line(format string, args ...interface{}) func(io.Writer) {
	return func(w io.Writer) {
		fmt.Fprintf(w, format+"\n", args...)
	}
}
