package requirements

import (
	"errors"
	"testing"

	"github.com/Pasa-Tanda/PasaTanda-Payment-Backend/x402"
)

const testPayTo = "GBPAYEEACCOUNTXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXX"

func testConfig() Config {
	return Config{
		Network:        x402.NetworkStellarTestnet,
		Asset:          x402.AssetNative,
		TimeoutSeconds: 300,
	}
}

func TestBuild(t *testing.T) {
	req, err := Build(10, "/orders/ORDER-1", "tanda contribution", testPayTo, testConfig())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if req.Scheme != x402.SchemeExact {
		t.Errorf("Scheme = %s; want %s", req.Scheme, x402.SchemeExact)
	}
	if req.MaxAmountRequired != "100000000" {
		t.Errorf("MaxAmountRequired = %s; want 100000000", req.MaxAmountRequired)
	}
	if req.Network != x402.NetworkStellarTestnet {
		t.Errorf("Network = %s; want %s", req.Network, x402.NetworkStellarTestnet)
	}
	if req.PayTo != testPayTo {
		t.Errorf("PayTo = %s; want %s", req.PayTo, testPayTo)
	}
	if req.MaxTimeoutSeconds != 300 {
		t.Errorf("MaxTimeoutSeconds = %d; want 300", req.MaxTimeoutSeconds)
	}
	if req.Extra != nil {
		t.Errorf("Extra = %v; want nil without fee sponsorship", req.Extra)
	}
}

func TestBuildFeeSponsorship(t *testing.T) {
	cfg := testConfig()
	cfg.FeeSponsorship = true

	req, err := Build(1, "/orders/ORDER-2", "", testPayTo, cfg)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if !req.FeeSponsored() {
		t.Error("FeeSponsored() = false; want true")
	}
}

func TestBuildRejectsMissingPayTo(t *testing.T) {
	_, err := Build(10, "/orders/ORDER-1", "", "", testConfig())
	if !errors.Is(err, x402.ErrNoPayTo) {
		t.Errorf("Build() error = %v; want ErrNoPayTo", err)
	}
}

func TestBuildRejectsInvalidAmount(t *testing.T) {
	for _, usd := range []float64{0, -5} {
		if _, err := Build(usd, "/r", "", testPayTo, testConfig()); !errors.Is(err, x402.ErrInvalidAmount) {
			t.Errorf("Build(%v) error = %v; want ErrInvalidAmount", usd, err)
		}
	}
}

func TestBuildDefaultsTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.TimeoutSeconds = 0

	req, err := Build(10, "/r", "", testPayTo, cfg)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if req.MaxTimeoutSeconds != DefaultTimeoutSeconds {
		t.Errorf("MaxTimeoutSeconds = %d; want %d", req.MaxTimeoutSeconds, DefaultTimeoutSeconds)
	}
}

func TestFiatOption(t *testing.T) {
	opt := FiatOption(10, FiatConfig{
		Enabled:      true,
		Currency:     "BOB",
		Symbol:       "Bs",
		ProofChannel: "qr",
		RateUSD:      6.96,
	})
	if opt == nil {
		t.Fatal("FiatOption() = nil; want option")
	}
	if opt.Amount != "69.60" {
		t.Errorf("Amount = %s; want 69.60", opt.Amount)
	}
	if opt.Currency != "BOB" || opt.Symbol != "Bs" || opt.ProofChannel != "qr" {
		t.Errorf("unexpected option %+v", opt)
	}
}

func TestFiatOptionDisabled(t *testing.T) {
	if opt := FiatOption(10, FiatConfig{Enabled: false}); opt != nil {
		t.Errorf("FiatOption() = %+v; want nil when disabled", opt)
	}
}
