package cronengine

import (
	"testing"
	"time"

	"github.com/jholhewres/steward/pkg/steward/store"
)

func TestParseTime(t *testing.T) {
	tests := []struct {
		in         string
		hour, min  int
		wantErr    bool
	}{
		{"7:00 PM", 19, 0, false},
		{"7:30 AM", 7, 30, false},
		{"12:00 PM", 12, 0, false},
		{"12:15 AM", 0, 15, false},
		{"19:00", 19, 0, false},
		{"9", 9, 0, false},
		{"7 PM", 19, 0, false},
		{"  8:05 am ", 8, 5, false},
		{"25:00", 0, 0, true},
		{"8:61", 0, 0, true},
		{"noon", 0, 0, true},
		{"", 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			h, m, err := ParseTime(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTime(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err == nil && (h != tt.hour || m != tt.min) {
				t.Errorf("ParseTime(%q) = %d:%02d, want %d:%02d", tt.in, h, m, tt.hour, tt.min)
			}
		})
	}
}

func TestRecurringSpec(t *testing.T) {
	t.Run("weekdays", func(t *testing.T) {
		job := &store.CronJob{
			ID:           1,
			ScheduleDays: []int{0, 1, 2, 3, 4},
			ScheduleTime: "7:00 AM",
			Timezone:     "America/New_York",
		}
		spec, err := recurringSpec(job)
		if err != nil {
			t.Fatalf("recurringSpec: %v", err)
		}
		want := "CRON_TZ=America/New_York 0 7 * * mon,tue,wed,thu,fri"
		if spec != want {
			t.Errorf("spec = %q, want %q", spec, want)
		}
	})

	t.Run("defaults", func(t *testing.T) {
		job := &store.CronJob{ID: 2, ScheduleDays: []int{6}}
		spec, err := recurringSpec(job)
		if err != nil {
			t.Fatalf("recurringSpec: %v", err)
		}
		want := "CRON_TZ=America/New_York 0 12 * * sun"
		if spec != want {
			t.Errorf("spec = %q, want %q", spec, want)
		}
	})

	t.Run("no days is an error", func(t *testing.T) {
		if _, err := recurringSpec(&store.CronJob{ID: 3, ScheduleTime: "9:00 AM"}); err == nil {
			t.Error("expected error for recurring job without days")
		}
	})

	t.Run("invalid day", func(t *testing.T) {
		if _, err := recurringSpec(&store.CronJob{ID: 4, ScheduleDays: []int{7}, ScheduleTime: "9:00 AM"}); err == nil {
			t.Error("expected error for day 7")
		}
	})
}

func TestOneTimeRunAt(t *testing.T) {
	t.Run("resolves in job timezone", func(t *testing.T) {
		job := &store.CronJob{
			ID:           5,
			IsOneTime:    true,
			RunDate:      "2026-04-01",
			ScheduleTime: "9:30 AM",
			Timezone:     "UTC",
		}
		got, err := oneTimeRunAt(job)
		if err != nil {
			t.Fatalf("oneTimeRunAt: %v", err)
		}
		want := time.Date(2026, 4, 1, 9, 30, 0, 0, time.UTC)
		if !got.Equal(want) {
			t.Errorf("runAt = %v, want %v", got, want)
		}
	})

	t.Run("missing date is an error", func(t *testing.T) {
		if _, err := oneTimeRunAt(&store.CronJob{ID: 6, IsOneTime: true}); err == nil {
			t.Error("expected error for one-time job without run date")
		}
	})

	t.Run("bad timezone is an error", func(t *testing.T) {
		job := &store.CronJob{ID: 7, RunDate: "2026-04-01", Timezone: "Nowhere/Land"}
		if _, err := oneTimeRunAt(job); err == nil {
			t.Error("expected error for unknown timezone")
		}
	})
}
