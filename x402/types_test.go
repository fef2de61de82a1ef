package x402

import (
	"errors"
	"testing"
)

func TestUSDToAtomic(t *testing.T) {
	tests := []struct {
		name    string
		usd     float64
		want    string
		wantErr bool
	}{
		{
			name: "ten dollars",
			usd:  10,
			want: "100000000",
		},
		{
			name: "fractional amount",
			usd:  0.5,
			want: "5000000",
		},
		{
			name: "sub-stroop precision truncates toward zero",
			usd:  0.00000019,
			want: "1",
		},
		{
			name: "smallest representable",
			usd:  0.0000001,
			want: "1",
		},
		{
			name:    "zero",
			usd:     0,
			wantErr: true,
		},
		{
			name:    "negative",
			usd:     -1,
			wantErr: true,
		},
		{
			name:    "below atomic resolution truncates to zero",
			usd:     0.00000001,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := USDToAtomic(tt.usd)
			if (err != nil) != tt.wantErr {
				t.Fatalf("USDToAtomic(%v) error = %v, wantErr %v", tt.usd, err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, ErrInvalidAmount) {
					t.Errorf("USDToAtomic(%v) error = %v; want ErrInvalidAmount", tt.usd, err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("USDToAtomic(%v) = %s; want %s", tt.usd, got, tt.want)
			}
		})
	}
}

func TestParseAtomic(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    int64
		wantErr bool
	}{
		{name: "valid", in: "100000000", want: 100000000},
		{name: "one stroop", in: "1", want: 1},
		{name: "zero", in: "0", wantErr: true},
		{name: "negative", in: "-5", wantErr: true},
		{name: "decimal", in: "10.5", wantErr: true},
		{name: "empty", in: "", wantErr: true},
		{name: "non-numeric", in: "abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAtomic(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAtomic(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseAtomic(%q) = %d; want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseAsset(t *testing.T) {
	code, issuer, native, err := ParseAsset("native")
	if err != nil {
		t.Fatalf("ParseAsset(native) error = %v", err)
	}
	if !native || code != "" || issuer != "" {
		t.Errorf("ParseAsset(native) = (%q, %q, %v); want native", code, issuer, native)
	}

	code, issuer, native, err = ParseAsset("USDC:GA5ZSEJYB37JRC5AVCIA5MOP4RHTM335X2KGX3IHOJAPP5RE34K4KZVN")
	if err != nil {
		t.Fatalf("ParseAsset(credit) error = %v", err)
	}
	if native || code != "USDC" || issuer != "GA5ZSEJYB37JRC5AVCIA5MOP4RHTM335X2KGX3IHOJAPP5RE34K4KZVN" {
		t.Errorf("ParseAsset(credit) = (%q, %q, %v)", code, issuer, native)
	}

	for _, bad := range []string{"", "USDC", "USDC:", ":GA5Z"} {
		if _, _, _, err := ParseAsset(bad); err == nil {
			t.Errorf("ParseAsset(%q) expected error", bad)
		}
	}
}

func TestPaymentPayloadValidate(t *testing.T) {
	crypto := &CryptoPayload{
		X402Version: X402Version,
		Scheme:      SchemeExact,
		Network:     NetworkStellarTestnet,
		Stellar: StellarPayload{
			TransactionXDR: "AAAA...",
			Source:         "GSOURCE",
			Amount:         "100000000",
			Destination:    "GDEST",
			Asset:          AssetNative,
		},
	}
	fiat := &FiatPayload{Currency: "BOB", Reference: "PASATANDA-1"}

	tests := []struct {
		name    string
		payload PaymentPayload
		wantErr bool
	}{
		{
			name:    "valid crypto",
			payload: PaymentPayload{Method: MethodCrypto, Crypto: crypto},
		},
		{
			name:    "valid fiat",
			payload: PaymentPayload{Method: MethodFiat, Fiat: fiat},
		},
		{
			name:    "missing method",
			payload: PaymentPayload{Crypto: crypto},
			wantErr: true,
		},
		{
			name:    "method without variant",
			payload: PaymentPayload{Method: MethodCrypto},
			wantErr: true,
		},
		{
			name:    "both variants populated",
			payload: PaymentPayload{Method: MethodCrypto, Crypto: crypto, Fiat: fiat},
			wantErr: true,
		},
		{
			name:    "fiat tag with crypto variant",
			payload: PaymentPayload{Method: MethodFiat, Crypto: crypto},
			wantErr: true,
		},
		{
			name: "crypto without transaction",
			payload: PaymentPayload{Method: MethodCrypto, Crypto: &CryptoPayload{
				Stellar: StellarPayload{Source: "GSOURCE"},
			}},
			wantErr: true,
		},
		{
			name: "fiat without reference",
			payload: PaymentPayload{Method: MethodFiat, Fiat: &FiatPayload{
				Currency: "BOB",
			}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.payload.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFeeSponsored(t *testing.T) {
	r := PaymentRequirements{}
	if r.FeeSponsored() {
		t.Error("FeeSponsored() = true for empty Extra")
	}

	r.Extra = map[string]interface{}{"feeSponsorship": true}
	if !r.FeeSponsored() {
		t.Error("FeeSponsored() = false; want true")
	}

	r.Extra = map[string]interface{}{"feeSponsorship": "yes"}
	if r.FeeSponsored() {
		t.Error("FeeSponsored() = true for non-bool value")
	}
}
