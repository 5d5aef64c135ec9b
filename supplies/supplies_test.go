package supplies

import "testing"

func TestCategorize(t *testing.T) {
	cases := []struct {
		name string
		want Category
	}{
		{"Black Toner Cartridge", CategoryToner},
		{"Cyan Ink", CategoryToner},
		{"Drum Unit Black", CategoryDrum},
		{"Imaging Unit", CategoryDrum},
		{"Waste Toner Box", CategoryToner},
		{"Fuser Kit", CategoryOther},
		{"Transfer Belt", CategoryOther},
	}
	for _, tc := range cases {
		if got := Categorize(tc.name); got != tc.want {
			t.Errorf("Categorize(%q) = %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestPercent(t *testing.T) {
	if pct, ok := Percent(50, 200); !ok || pct != 25 {
		t.Errorf("Percent(50, 200) = (%d, %v), want (25, true)", pct, ok)
	}
	if _, ok := Percent(-2, 100); ok {
		t.Error("unknown sentinel must not be numeric")
	}
	if _, ok := Percent(-3, 100); ok {
		t.Error("some-remaining sentinel must not be numeric")
	}
	if _, ok := Percent(10, 0); ok {
		t.Error("zero capacity must not be numeric")
	}
}

func TestDescribe(t *testing.T) {
	cases := []struct {
		level, max int64
		want       string
	}{
		{-2, 100, "Unknown"},
		{-3, 100, "OK"},
		{-1, 100, "N/A"},
		{10, 0, "N/A"},
		{85, 100, "85%"},
		{1, 3, "33%"},
	}
	for _, tc := range cases {
		if got := Describe(tc.level, tc.max); got != tc.want {
			t.Errorf("Describe(%d, %d) = %q, want %q", tc.level, tc.max, got, tc.want)
		}
	}
}
