package athlete

import "testing"

func TestBaselineNilWhenNoAnchors(t *testing.T) {
	r := &Record{AthleteID: "ath_1"}
	if r.Baseline() != nil {
		t.Fatal("expected nil baseline for athlete without anchors")
	}
	var missing *Record
	if missing.Baseline() != nil {
		t.Fatal("expected nil baseline for nil record")
	}
}

func TestBaselineCarriesAnchors(t *testing.T) {
	thr := 171.0
	max := 192.0
	r := &Record{AthleteID: "ath_1", ThresholdHR: &thr, MaxHR: &max}

	b := r.Baseline()
	if b == nil || !b.Known() {
		t.Fatal("expected known baseline")
	}
	if b.ThresholdHR == nil || *b.ThresholdHR != thr {
		t.Fatalf("threshold hr = %v, want %v", b.ThresholdHR, thr)
	}
	if b.MaxHR == nil || *b.MaxHR != max {
		t.Fatalf("max hr = %v, want %v", b.MaxHR, max)
	}
	if b.RestingHR != nil {
		t.Fatalf("resting hr = %v, want nil", b.RestingHR)
	}
}
