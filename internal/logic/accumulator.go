package logic

// Accumulator joins single-field updates into complete observations.
// It owns the one pending observation; not safe for concurrent use.
type Accumulator struct {
	schema    *Schema
	values    []float64
	present   []bool
	count     int
	timestamp float64
}

// NewAccumulator creates an accumulator for the given schema.
func NewAccumulator(schema *Schema) *Accumulator {
	return &Accumulator{
		schema:  schema,
		values:  make([]float64, schema.Len()),
		present: make([]bool, schema.Len()),
	}
}

// Apply records the update and returns a completed observation once every
// field has a value. The update's timestamp always replaces the pending one.
// Updates for fields outside the schema are ignored.
func (a *Accumulator) Apply(u FieldUpdate) (Observation, bool) {
	if !a.schema.Valid(u.Field) {
		return Observation{}, false
	}

	a.values[u.Field] = u.Value
	if !a.present[u.Field] {
		a.present[u.Field] = true
		a.count++
	}
	a.timestamp = u.Timestamp

	if a.count < len(a.present) {
		return Observation{}, false
	}

	obs := Observation{
		Values:    make([]float64, len(a.values)),
		Timestamp: a.timestamp,
	}
	copy(obs.Values, a.values)
	a.reset()
	return obs, true
}

// Pending returns how many fields currently have a value.
func (a *Accumulator) Pending() int {
	return a.count
}

func (a *Accumulator) reset() {
	for i := range a.present {
		a.present[i] = false
		a.values[i] = 0
	}
	a.count = 0
}
