package config

import "testing"

func TestDefault(t *testing.T) {
	d := Default()
	if d.BadFraction != 0.02 || d.TurningPoint != 0.01 || d.MinFraction != 0.75 {
		t.Fatalf("unexpected defaults: %+v", d)
	}
}

func TestFromMapOverrides(t *testing.T) {
	opt := FromMap(map[string]string{
		"BC.BadFraction":  "0.1",
		"BC.TurningPoint": "0.2",
		"BC.MinFraction":  "0.5",
	})
	if opt.BadFraction != 0.1 || opt.TurningPoint != 0.2 || opt.MinFraction != 0.5 {
		t.Fatalf("overrides not applied: %+v", opt)
	}
}

func TestFromMapOutOfRangeFallsBackToDefault(t *testing.T) {
	opt := FromMap(map[string]string{
		"BC.BadFraction":  "1.5",
		"BC.TurningPoint": "-0.1",
		"BC.MinFraction":  "not-a-number",
	})
	d := Default()
	if opt != d {
		t.Fatalf("expected defaults on invalid input, got %+v", opt)
	}
}

func TestFromMapUnknownKeyIgnored(t *testing.T) {
	opt := FromMap(map[string]string{"Rules": "rules.txt"})
	if opt != Default() {
		t.Fatalf("unknown keys should not affect options: %+v", opt)
	}
}
