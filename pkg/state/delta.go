package state

// Delta bounds. Every write into a DeltaVector is clamped to this range.
const (
	DeltaMin = -1.0
	DeltaMax = 1.0
)

// DeltaVector is the per-turn signed change to the relationship-style numeric
// game state. Values are always within [DeltaMin, DeltaMax].
type DeltaVector struct {
	Trust        float64 `json:"trust"`
	Relationship float64 `json:"relationship"`
}

// NewDeltaVector builds a clamped delta vector.
func NewDeltaVector(trust, relationship float64) DeltaVector {
	return DeltaVector{
		Trust:        ClampDelta(trust),
		Relationship: ClampDelta(relationship),
	}
}

// Set assigns the named component, clamped. Unknown keys are ignored so that
// model output with extra attributes does not corrupt the vector.
func (d *DeltaVector) Set(key string, value float64) {
	switch key {
	case "trust":
		d.Trust = ClampDelta(value)
	case "relationship":
		d.Relationship = ClampDelta(value)
	}
}

// Get returns the named component and whether the key is a known delta field.
func (d *DeltaVector) Get(key string) (float64, bool) {
	switch key {
	case "trust":
		return d.Trust, true
	case "relationship":
		return d.Relationship, true
	}
	return 0, false
}

// Clamp re-applies the bounds to both components.
func (d *DeltaVector) Clamp() {
	d.Trust = ClampDelta(d.Trust)
	d.Relationship = ClampDelta(d.Relationship)
}

// Map returns the vector as a plain map for the response payload.
func (d DeltaVector) Map() map[string]float64 {
	return map[string]float64{
		"trust":        d.Trust,
		"relationship": d.Relationship,
	}
}

// ClampDelta bounds a single delta value to [DeltaMin, DeltaMax].
func ClampDelta(v float64) float64 {
	if v < DeltaMin {
		return DeltaMin
	}
	if v > DeltaMax {
		return DeltaMax
	}
	return v
}
