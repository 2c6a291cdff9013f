package domain

import "testing"

func TestFormatRunNumber(t *testing.T) {
	cases := []struct {
		major, minor int
		want         string
	}{
		{1, 0, "1"},
		{3, 0, "3"},
		{3, 2, "3.2"},
		{12, 11, "12.11"},
	}
	for _, c := range cases {
		if got := FormatRunNumber(c.major, c.minor); got != c.want {
			t.Errorf("FormatRunNumber(%d, %d) = %q, want %q", c.major, c.minor, got, c.want)
		}
	}
}

func TestWorkflowFullName(t *testing.T) {
	w := &Workflow{Name: "fit", RunNumberMajor: 2, RunNumberMinor: 1}
	if got := w.FullName(); got != "fit.2.1" {
		t.Errorf("FullName = %q, want %q", got, "fit.2.1")
	}
	w.RunNumberMinor = 0
	if got := w.FullName(); got != "fit.2" {
		t.Errorf("FullName = %q, want %q", got, "fit.2")
	}
}

func TestInputParameterValues(t *testing.T) {
	w := &Workflow{
		Specification:   []byte(`{"inputs": {"parameters": {"events": 1000, "detector": "atlas"}}}`),
		InputParameters: []byte(`{"events": 250}`),
	}
	params, err := w.InputParameterValues()
	if err != nil {
		t.Fatalf("input parameters: %v", err)
	}
	if params["events"] != float64(250) {
		t.Errorf("events = %v, want run override 250", params["events"])
	}
	if params["detector"] != "atlas" {
		t.Errorf("detector = %v, want declared default", params["detector"])
	}

	empty := &Workflow{}
	params, err = empty.InputParameterValues()
	if err != nil || len(params) != 0 {
		t.Errorf("empty workflow parameters = %v, %v; want empty map", params, err)
	}
}

func TestComplexityRequiredMemory(t *testing.T) {
	var empty ComplexitySteps
	if got := empty.RequiredMemory(); got != 0 {
		t.Errorf("empty complexity memory = %d, want 0", got)
	}
	c := ComplexitySteps{{Jobs: 2, Memory: 1024}, {Jobs: 1, Memory: 512}}
	if got := c.RequiredMemory(); got != 2560 {
		t.Errorf("required memory = %d, want 2560", got)
	}
}

func TestComplexityScanValueRoundTrip(t *testing.T) {
	c := ComplexitySteps{{Jobs: 3, Memory: 2048}}
	raw, err := c.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	var decoded ComplexitySteps
	if err := decoded.Scan(raw); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(decoded) != 1 || decoded[0].Jobs != 3 || decoded[0].Memory != 2048 {
		t.Errorf("round trip = %+v", decoded)
	}

	var fromNil ComplexitySteps
	if err := fromNil.Scan(nil); err != nil {
		t.Fatalf("Scan(nil): %v", err)
	}
	if fromNil == nil || len(fromNil) != 0 {
		t.Errorf("Scan(nil) = %+v, want empty", fromNil)
	}
}
