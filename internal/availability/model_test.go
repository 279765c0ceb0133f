package availability

import (
	"errors"
	"testing"
	"time"
)

func TestParseClock(t *testing.T) {
	good := map[string]int{
		"00:00": 0,
		"09:30": 570,
		"14:05": 845,
		"23:59": 1439,
	}
	for in, want := range good {
		got, err := ParseClock(in)
		if err != nil {
			t.Errorf("ParseClock(%q): %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseClock(%q) = %d, want %d", in, got, want)
		}
	}

	bad := []string{"", "9:30", "09:3", "09-30", "24:00", "12:60", "ab:cd", "09:30:00", "-1:00", "09:-5", "+9:00", " 9:30"}
	for _, in := range bad {
		if _, err := ParseClock(in); err == nil {
			t.Errorf("ParseClock(%q): expected error", in)
		}
	}
}

func TestValidateRules(t *testing.T) {
	t.Run("accepts a clean template", func(t *testing.T) {
		rules := []Rule{
			{Weekday: time.Monday, Start: "09:00", End: "09:30", Mode: ModeOnline},
			{Weekday: time.Monday, Start: "09:30", End: "10:00", Mode: ModeOnline},
			{Weekday: time.Tuesday, Start: "09:00", End: "09:30", Mode: ModeOnline},
		}
		if err := ValidateRules(rules); err != nil {
			t.Fatalf("ValidateRules: %v", err)
		}
	})

	t.Run("rejects overlap within a weekday and mode", func(t *testing.T) {
		rules := []Rule{
			{Weekday: time.Monday, Start: "09:00", End: "10:00", Mode: ModeOnline},
			{Weekday: time.Monday, Start: "09:30", End: "10:30", Mode: ModeOnline},
		}
		if err := ValidateRules(rules); !errors.Is(err, ErrRuleOverlap) {
			t.Fatalf("err = %v, want ErrRuleOverlap", err)
		}
	})

	t.Run("same range on different weekdays is fine", func(t *testing.T) {
		rules := []Rule{
			{Weekday: time.Monday, Start: "09:00", End: "10:00", Mode: ModeOnline},
			{Weekday: time.Tuesday, Start: "09:00", End: "10:00", Mode: ModeOnline},
		}
		if err := ValidateRules(rules); err != nil {
			t.Fatalf("ValidateRules: %v", err)
		}
	})

	t.Run("same range in different modes is fine", func(t *testing.T) {
		rules := []Rule{
			{Weekday: time.Monday, Start: "09:00", End: "10:00", Mode: ModeOnline},
			{Weekday: time.Monday, Start: "09:00", End: "10:00", Mode: ModeInPerson},
		}
		if err := ValidateRules(rules); err != nil {
			t.Fatalf("ValidateRules: %v", err)
		}
	})

	t.Run("rejects inverted range", func(t *testing.T) {
		rules := []Rule{{Weekday: time.Monday, Start: "10:00", End: "09:00", Mode: ModeOnline}}
		if err := ValidateRules(rules); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("rejects bad mode", func(t *testing.T) {
		rules := []Rule{{Weekday: time.Monday, Start: "09:00", End: "10:00", Mode: "phone"}}
		if err := ValidateRules(rules); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestFeeFor(t *testing.T) {
	p := Practitioner{FeeOnline: 40, FeeInPerson: 75}
	if got := p.FeeFor(ModeOnline); got != 40 {
		t.Errorf("FeeFor(online) = %v, want 40", got)
	}
	if got := p.FeeFor(ModeInPerson); got != 75 {
		t.Errorf("FeeFor(in-person) = %v, want 75", got)
	}
}
