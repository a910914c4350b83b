package lending

import (
	"math/big"
	"testing"
)

func TestRatePerStepKinkedCurve(t *testing.T) {
	cfg := defaultConfig()
	cases := []struct {
		name        string
		utilization *big.Int
		want        *big.Int
	}{
		{"idle", big.NewInt(0), big.NewInt(1e16)},
		{"below kink", big.NewInt(4e17), big.NewInt(3e16)},
		{"at kink", big.NewInt(8e17), big.NewInt(5e16)},
		{"above kink", big.NewInt(9e17), big.NewInt(35e16)},
		{"saturated", cloneBig(wad), big.NewInt(65e16)},
	}
	for _, tc := range cases {
		got := RatePerStep(cfg, tc.utilization)
		if got.Cmp(tc.want) != 0 {
			t.Fatalf("%s: got %v want %v", tc.name, got, tc.want)
		}
	}
}

func TestRatePerStepReferenceScenario(t *testing.T) {
	// Base 0, slope1 10%, slope2 100%, kink at 80%: utilization 40% must
	// yield exactly 5% per step.
	cfg := referenceRateConfig()
	got := RatePerStep(cfg, big.NewInt(4e17))
	if got.Cmp(big.NewInt(5e16)) != 0 {
		t.Fatalf("reference scenario: got %v want %v", got, big.NewInt(5e16))
	}
}

func TestRatePerStepFullRangeOptimal(t *testing.T) {
	cfg := defaultConfig()
	cfg.OptimalUtilizationBps = 10_000

	// With the kink at 100% the second branch has no headroom; the first
	// branch covers the whole range and saturation pays base plus slope1.
	got := RatePerStep(cfg, cloneBig(wad))
	want := new(big.Int).Add(cfg.BaseRateWad, cfg.Slope1Wad)
	if got.Cmp(want) != 0 {
		t.Fatalf("full-range optimal: got %v want %v", got, want)
	}
}

func TestRatePerStepDoesNotMutateInputs(t *testing.T) {
	cfg := defaultConfig()
	utilization := big.NewInt(9e17)
	base := cloneBig(cfg.BaseRateWad)
	slope1 := cloneBig(cfg.Slope1Wad)
	RatePerStep(cfg, utilization)
	if cfg.BaseRateWad.Cmp(base) != 0 || cfg.Slope1Wad.Cmp(slope1) != 0 {
		t.Fatalf("config coefficients mutated")
	}
	if utilization.Cmp(big.NewInt(9e17)) != 0 {
		t.Fatalf("utilization mutated")
	}
}
