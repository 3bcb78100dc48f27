package miner

import "testing"

var testTemplate = Template{
	ID: 3, Name: "Bunny Harvester", Price: 100, Hash: 2000, Watts: 50,
	MaxLevel: 7, BaseUpgradeCost: 10, BaseRepairRate: 0.5,
}

func TestUpgradeCostAndXPToNext(t *testing.T) {
	tests := []struct {
		level    int
		wantCost float64
		wantXP   int64
	}{
		{1, 40, 400},
		{2, 90, 900},
		{5, 360, 3600},
	}
	for _, tt := range tests {
		d := Device{Level: tt.level}
		if got := UpgradeCost(testTemplate, d); got != tt.wantCost {
			t.Errorf("level %d: UpgradeCost = %v, want %v", tt.level, got, tt.wantCost)
		}
		if got := XPToNext(d); got != tt.wantXP {
			t.Errorf("level %d: XPToNext = %v, want %v", tt.level, got, tt.wantXP)
		}
	}
}

func TestUpgradeCostStrictlyIncreasing(t *testing.T) {
	for _, tmpl := range DefaultCatalog().Templates() {
		prevCost, prevXP := -1.0, int64(-1)
		for lvl := 1; lvl <= tmpl.MaxLevel; lvl++ {
			d := Device{Level: lvl}
			cost, xp := UpgradeCost(tmpl, d), XPToNext(d)
			if cost <= prevCost {
				t.Fatalf("%s: cost not increasing at level %d (%v <= %v)", tmpl.Name, lvl, cost, prevCost)
			}
			if xp <= prevXP {
				t.Fatalf("%s: xp not increasing at level %d (%v <= %v)", tmpl.Name, lvl, xp, prevXP)
			}
			prevCost, prevXP = cost, xp
		}
	}
}

func TestRepairCost(t *testing.T) {
	tests := []struct {
		durability int
		want       float64
	}{
		{100, 0},
		{99, 1},  // ceil(0.5)
		{95, 3},  // ceil(2.5)
		{0, 50},
		{-10, 50},
	}
	for _, tt := range tests {
		got := RepairCost(testTemplate, Device{Level: 1, Durability: tt.durability})
		if got != tt.want {
			t.Errorf("durability %d: RepairCost = %v, want %v", tt.durability, got, tt.want)
		}
	}
}

func TestEffectiveHash(t *testing.T) {
	tests := []struct {
		level int
		want  float64
	}{
		{1, 2000},
		{2, 2200},
		{5, 2800},
		{6, 2900},
		{7, 3000},
	}
	for _, tt := range tests {
		got := EffectiveHash(testTemplate, Device{Level: tt.level})
		if got != tt.want {
			t.Errorf("level %d: EffectiveHash = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestEffectiveWatts(t *testing.T) {
	if got := EffectiveWatts(testTemplate, Device{Level: 1}); got != 50 {
		t.Errorf("level 1 watts = %v, want 50", got)
	}
	if got := EffectiveWatts(testTemplate, Device{Level: 3}); got != 48 {
		t.Errorf("level 3 watts = %v, want 48", got)
	}
	tiny := Template{Watts: 1}
	if got := EffectiveWatts(tiny, Device{Level: 40}); got != 1 {
		t.Errorf("floored watts = %v, want 1", got)
	}
}

func TestActiveHashGating(t *testing.T) {
	d := Device{Level: 1, Durability: 100}
	if ActiveHash(testTemplate, d) != 2000 {
		t.Fatal("healthy device should produce")
	}
	d.Overheated = true
	if ActiveHash(testTemplate, d) != 0 || ActiveWatts(testTemplate, d) != 0 {
		t.Fatal("overheated device must contribute nothing")
	}
	d.Overheated, d.Durability = false, 0
	if ActiveHash(testTemplate, d) != 0 {
		t.Fatal("broken device must contribute nothing")
	}
}
