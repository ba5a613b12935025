package model

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// ScalerParams is the on-disk form of a fitted standard scaler.
type ScalerParams struct {
	Fields []string  `yaml:"fields"`
	Mean   []float64 `yaml:"mean"`
	Scale  []float64 `yaml:"scale"`
}

// Scaler normalizes raw vectors as (x - mean) / scale.
type Scaler struct {
	fields []string
	mean   []float64
	scale  []float64
}

// NewScaler validates params against the expected field order.
func NewScaler(p ScalerParams, fields []string) (*Scaler, error) {
	if err := sameFields(p.Fields, fields); err != nil {
		return nil, fmt.Errorf("scaler: %w", err)
	}
	if len(p.Mean) != len(fields) || len(p.Scale) != len(fields) {
		return nil, fmt.Errorf("scaler: need %d mean and scale values, got %d and %d",
			len(fields), len(p.Mean), len(p.Scale))
	}
	for i, s := range p.Scale {
		if s == 0 || math.IsNaN(s) || math.IsInf(s, 0) {
			return nil, fmt.Errorf("scaler: scale for %q must be finite and non-zero, got %v", fields[i], s)
		}
		if math.IsNaN(p.Mean[i]) || math.IsInf(p.Mean[i], 0) {
			return nil, fmt.Errorf("scaler: mean for %q must be finite, got %v", fields[i], p.Mean[i])
		}
	}
	return &Scaler{
		fields: append([]string(nil), fields...),
		mean:   append([]float64(nil), p.Mean...),
		scale:  append([]float64(nil), p.Scale...),
	}, nil
}

// LoadScaler reads scaler parameters from a YAML file.
func LoadScaler(path string, fields []string) (*Scaler, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scaler: read file: %w", err)
	}
	var p ScalerParams
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("scaler: parse yaml: %w", err)
	}
	return NewScaler(p, fields)
}

// Normalize returns the standardized vector. Non-finite inputs are rejected.
func (s *Scaler) Normalize(raw []float64) ([]float64, error) {
	if len(raw) != len(s.mean) {
		return nil, fmt.Errorf("got %d values, want %d", len(raw), len(s.mean))
	}
	out := make([]float64, len(raw))
	for i, v := range raw {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%s is not finite: %v", s.fields[i], v)
		}
		out[i] = (v - s.mean[i]) / s.scale[i]
	}
	return out, nil
}

func sameFields(got, want []string) error {
	if len(got) != len(want) {
		return fmt.Errorf("fields %v do not match %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			return fmt.Errorf("field %d is %q, want %q", i, got[i], want[i])
		}
	}
	return nil
}
