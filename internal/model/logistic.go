package model

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// LogisticParams is the on-disk form of the window classifier.
type LogisticParams struct {
	Fields       []string           `yaml:"fields"`
	Window       int                `yaml:"window"`
	Bias         float64            `yaml:"bias"`
	Weights      map[string]float64 `yaml:"weights"`
	TrendWeights map[string]float64 `yaml:"trend_weights"`
}

// Logistic scores a window from per-field column means and trends
// (last row minus first row) through a sigmoid.
type Logistic struct {
	window int
	bias   float64
	mean   []float64 // weight per column mean, schema order
	trend  []float64 // weight per column trend, schema order
}

// NewLogistic validates params against the field order and window length.
func NewLogistic(p LogisticParams, fields []string, window int) (*Logistic, error) {
	if err := sameFields(p.Fields, fields); err != nil {
		return nil, fmt.Errorf("classifier: %w", err)
	}
	if p.Window != window {
		return nil, fmt.Errorf("classifier: model expects window %d, configured %d", p.Window, window)
	}
	known := make(map[string]bool, len(fields))
	for _, f := range fields {
		known[f] = true
	}
	for _, m := range []map[string]float64{p.Weights, p.TrendWeights} {
		for name := range m {
			if !known[name] {
				return nil, fmt.Errorf("classifier: weight for unknown field %q", name)
			}
		}
	}

	l := &Logistic{
		window: window,
		bias:   p.Bias,
		mean:   make([]float64, len(fields)),
		trend:  make([]float64, len(fields)),
	}
	for i, f := range fields {
		l.mean[i] = p.Weights[f]
		l.trend[i] = p.TrendWeights[f]
	}
	return l, nil
}

// LoadLogistic reads classifier parameters from a YAML file.
func LoadLogistic(path string, fields []string, window int) (*Logistic, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("classifier: read file: %w", err)
	}
	var p LogisticParams
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("classifier: parse yaml: %w", err)
	}
	return NewLogistic(p, fields, window)
}

// Classify returns a score in (0, 1) for a window of window x len(fields) values.
func (l *Logistic) Classify(window [][]float64) (float64, error) {
	if len(window) != l.window {
		return 0, fmt.Errorf("got %d rows, want %d", len(window), l.window)
	}
	width := len(l.mean)
	sums := make([]float64, width)
	for i, r := range window {
		if len(r) != width {
			return 0, fmt.Errorf("row %d has %d values, want %d", i, len(r), width)
		}
		for j, v := range r {
			sums[j] += v
		}
	}

	z := l.bias
	first, last := window[0], window[len(window)-1]
	for j := 0; j < width; j++ {
		z += l.mean[j] * sums[j] / float64(len(window))
		z += l.trend[j] * (last[j] - first[j])
	}
	score := 1 / (1 + math.Exp(-z))
	if math.IsNaN(score) {
		return 0, fmt.Errorf("score is NaN")
	}
	return score, nil
}
