package state

import "testing"

func TestClampDelta(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{"within range", 0.5, 0.5},
		{"above max", 1.7, 1.0},
		{"below min", -3.2, -1.0},
		{"exact max", 1.0, 1.0},
		{"exact min", -1.0, -1.0},
		{"zero", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClampDelta(tt.in); got != tt.want {
				t.Errorf("ClampDelta(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestDeltaVector_SetClamps(t *testing.T) {
	var d DeltaVector
	d.Set("trust", 2.5)
	d.Set("relationship", -9)

	if d.Trust != 1.0 {
		t.Errorf("expected trust clamped to 1.0, got %v", d.Trust)
	}
	if d.Relationship != -1.0 {
		t.Errorf("expected relationship clamped to -1.0, got %v", d.Relationship)
	}
}

func TestDeltaVector_SetIgnoresUnknownKeys(t *testing.T) {
	var d DeltaVector
	d.Set("mood", 0.9)

	if d.Trust != 0 || d.Relationship != 0 {
		t.Errorf("unknown key should not modify vector, got %+v", d)
	}
	if _, ok := d.Get("mood"); ok {
		t.Error("Get should not recognize unknown keys")
	}
}

func TestDeltaVector_Map(t *testing.T) {
	d := NewDeltaVector(0.3, -0.2)
	m := d.Map()

	if m["trust"] != 0.3 {
		t.Errorf("expected trust 0.3, got %v", m["trust"])
	}
	if m["relationship"] != -0.2 {
		t.Errorf("expected relationship -0.2, got %v", m["relationship"])
	}
}
