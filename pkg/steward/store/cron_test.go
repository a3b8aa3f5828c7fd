package store

import "testing"

func TestFormatDays(t *testing.T) {
	tests := []struct {
		name string
		days []int
		want string
	}{
		{"every day", []int{0, 1, 2, 3, 4, 5, 6}, "Every day"},
		{"weekdays", []int{0, 1, 2, 3, 4}, "Weekdays"},
		{"weekends", []int{5, 6}, "Weekends"},
		{"mixed", []int{6, 0, 2}, "Mon, Wed, Sun"},
		{"single", []int{3}, "Thu"},
		{"empty", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatDays(tt.days); got != tt.want {
				t.Errorf("FormatDays(%v) = %q, want %q", tt.days, got, tt.want)
			}
		})
	}
}

func TestTimezoneDisplay(t *testing.T) {
	if got := TimezoneDisplay("America/New_York"); got != "Eastern Time (ET)" {
		t.Errorf("TimezoneDisplay = %q", got)
	}
	if got := TimezoneDisplay("Mars/Olympus"); got != "Mars/Olympus" {
		t.Errorf("unknown zones pass through, got %q", got)
	}
}

func TestCommonTimezonesCatalogue(t *testing.T) {
	if len(CommonTimezones) != 15 {
		t.Errorf("catalogue has %d entries, want 15", len(CommonTimezones))
	}
	if CommonTimezones[len(CommonTimezones)-1].Value != "UTC" {
		t.Error("catalogue should end with UTC")
	}
}

func TestIntArrayRoundTrip(t *testing.T) {
	tests := []struct {
		days []int
		lit  string
	}{
		{[]int{0, 2, 4}, "{0,2,4}"},
		{[]int{}, "{}"},
	}
	for _, tt := range tests {
		got := intArrayLiteral(tt.days)
		if got != tt.lit {
			t.Errorf("intArrayLiteral(%v) = %v, want %q", tt.days, got, tt.lit)
		}
		back := parseIntArray(tt.lit)
		if len(back) != len(tt.days) {
			t.Errorf("parseIntArray(%q) = %v, want %v", tt.lit, back, tt.days)
			continue
		}
		for i := range back {
			if back[i] != tt.days[i] {
				t.Errorf("parseIntArray(%q)[%d] = %d, want %d", tt.lit, i, back[i], tt.days[i])
			}
		}
	}

	if intArrayLiteral(nil) != nil {
		t.Error("nil days should produce a NULL parameter")
	}
	if parseIntArray("") != nil {
		t.Error("empty literal should parse to nil")
	}
}

func TestValidBlock(t *testing.T) {
	for _, b := range []string{"user", "identity", "ideaspace"} {
		if !ValidBlock(b) {
			t.Errorf("ValidBlock(%q) = false", b)
		}
	}
	for _, b := range []string{"system_instructions", "", "core"} {
		if ValidBlock(b) {
			t.Errorf("ValidBlock(%q) = true", b)
		}
	}
}
