package episode

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
)

func TestEndTime_ZeroValueIsActive(t *testing.T) {
	var et EndTime
	if !et.IsActive() {
		t.Error("zero EndTime should be active")
	}
	if et.Ptr() != nil {
		t.Error("Active().Ptr() should be nil")
	}
}

func TestEndTime_EndedAt(t *testing.T) {
	et := EndedAt(1234)
	if et.IsActive() {
		t.Error("EndedAt should not be active")
	}
	at, ok := et.At()
	if !ok || at != 1234 {
		t.Errorf("At() = %d, %v; want 1234, true", at, ok)
	}
	if p := et.Ptr(); p == nil || *p != 1234 {
		t.Errorf("Ptr() = %v, want 1234", p)
	}
	if FromPtr(et.Ptr()) != et {
		t.Error("FromPtr(Ptr()) should round-trip")
	}
	if !FromPtr(nil).IsActive() {
		t.Error("FromPtr(nil) should be active")
	}
}

func TestEndTime_JSON(t *testing.T) {
	type wrapper struct {
		EndTime EndTime `json:"end_time"`
	}

	data, err := json.Marshal(wrapper{EndTime: Active()})
	if err != nil {
		t.Fatalf("Marshal error = %v", err)
	}
	if string(data) != `{"end_time":null}` {
		t.Errorf("Marshal(Active) = %s", data)
	}

	data, _ = json.Marshal(wrapper{EndTime: EndedAt(99)})
	if string(data) != `{"end_time":99}` {
		t.Errorf("Marshal(EndedAt) = %s", data)
	}

	var w wrapper
	if err := json.Unmarshal([]byte(`{"end_time":42}`), &w); err != nil {
		t.Fatalf("Unmarshal error = %v", err)
	}
	if at, ok := w.EndTime.At(); !ok || at != 42 {
		t.Errorf("Unmarshal(42) = %v", w.EndTime)
	}

	w = wrapper{EndTime: EndedAt(1)}
	if err := json.Unmarshal([]byte(`{"end_time":null}`), &w); err != nil {
		t.Fatalf("Unmarshal error = %v", err)
	}
	if !w.EndTime.IsActive() {
		t.Error("Unmarshal(null) should be active")
	}

	if err := json.Unmarshal([]byte(`{"end_time":"soon"}`), &w); err == nil {
		t.Error("Unmarshal(string) should fail")
	}
}

func TestCheckInvariants(t *testing.T) {
	e := &Episode{
		ID:              "e1",
		StartTime:       0,
		Severity:        8,
		SeverityHistory: []Sample{{0, 4}, {300000, 2}, {600000, 8}},
	}
	if err := e.CheckInvariants(); err != nil {
		t.Errorf("CheckInvariants() = %v, want nil", err)
	}

	e.Severity = 2
	if err := e.CheckInvariants(); err == nil || !strings.Contains(err.Error(), "latest sample") {
		t.Errorf("CheckInvariants() = %v, want severity mismatch", err)
	}

	e.Severity = 8
	e.SeverityHistory = []Sample{{600000, 8}, {0, 4}}
	if err := e.CheckInvariants(); err == nil {
		t.Error("CheckInvariants() should reject unsorted history")
	}

	e.SeverityHistory = nil
	if err := e.CheckInvariants(); err == nil {
		t.Error("CheckInvariants() should reject empty history")
	}

	e.SeverityHistory = []Sample{{100, 8}}
	e.StartTime = 100
	e.EndTime = EndedAt(50)
	if err := e.CheckInvariants(); err == nil {
		t.Error("CheckInvariants() should reject end before start")
	}
}

func TestClone(t *testing.T) {
	notes := "aura"
	e := &Episode{
		ID:              "e1",
		SeverityHistory: []Sample{{0, 4}},
		Triggers:        []string{"Coffee"},
		Notes:           &notes,
	}
	c := e.Clone()
	c.SeverityHistory[0].Severity = 9
	c.Triggers[0] = "Sleep"
	*c.Notes = "changed"

	if e.SeverityHistory[0].Severity != 4 || e.Triggers[0] != "Coffee" || *e.Notes != "aura" {
		t.Error("Clone() shares memory with the original")
	}
}

func TestValidSeverity(t *testing.T) {
	for _, n := range []int{1, 5, 10} {
		if !ValidSeverity(n) {
			t.Errorf("ValidSeverity(%d) = false", n)
		}
	}
	for _, n := range []int{-1, 0, 11, 100} {
		if ValidSeverity(n) {
			t.Errorf("ValidSeverity(%d) = true", n)
		}
	}
}

func TestSeverityFromFloat(t *testing.T) {
	tests := []struct {
		in   float64
		want int
		ok   bool
	}{
		{1, 1, true},
		{10, 10, true},
		{7, 7, true},
		{0, 0, false},
		{11, 0, false},
		{5.5, 0, false},
		{math.NaN(), 0, false},
		{math.Inf(1), 0, false},
		{math.Inf(-1), 0, false},
	}
	for _, tt := range tests {
		got, ok := SeverityFromFloat(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("SeverityFromFloat(%v) = %d, %v; want %d, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestLevel(t *testing.T) {
	tests := map[int]SeverityLevel{
		1: LevelLow, 3: LevelLow,
		4: LevelMild, 5: LevelMild,
		6: LevelModerate, 7: LevelModerate,
		8: LevelHigh, 10: LevelHigh,
	}
	for sev, want := range tests {
		if got := Level(sev); got != want {
			t.Errorf("Level(%d) = %q, want %q", sev, got, want)
		}
		lo, hi, ok := LevelRange(want)
		if !ok || sev < lo || sev > hi {
			t.Errorf("LevelRange(%q) = [%d,%d] does not contain %d", want, lo, hi, sev)
		}
	}
	if _, _, ok := LevelRange("extreme"); ok {
		t.Error("LevelRange(unknown) ok = true")
	}
}
