package encoding

import (
	"encoding/base64"
	"reflect"
	"testing"

	"github.com/Pasa-Tanda/PasaTanda-Payment-Backend/x402"
)

func TestEncodeDecodePayment(t *testing.T) {
	original := x402.PaymentPayload{
		Method: x402.MethodCrypto,
		Crypto: &x402.CryptoPayload{
			X402Version: x402.X402Version,
			Scheme:      x402.SchemeExact,
			Network:     x402.NetworkStellarTestnet,
			Stellar: x402.StellarPayload{
				TransactionXDR: "AAAAAgAAAAB3example",
				Source:         "GBSOURCEACCOUNT",
				Amount:         "100000000",
				Destination:    "GBDESTACCOUNT",
				Asset:          x402.AssetNative,
				ValidBefore:    1756684800,
				Nonce:          "n-1",
			},
		},
	}

	encoded, err := EncodePayment(original)
	if err != nil {
		t.Fatalf("EncodePayment() error = %v", err)
	}

	if _, err := base64.StdEncoding.DecodeString(encoded); err != nil {
		t.Errorf("EncodePayment() result is not valid base64: %v", err)
	}

	decoded, err := DecodePayment(encoded)
	if err != nil {
		t.Fatalf("DecodePayment() error = %v", err)
	}

	if !reflect.DeepEqual(decoded, original) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", decoded, original)
	}
}

func TestEncodeDecodeFiatPayment(t *testing.T) {
	original := x402.PaymentPayload{
		Method: x402.MethodFiat,
		Fiat: &x402.FiatPayload{
			Currency:       "BOB",
			Reference:      "PASATANDA-ORDER-1",
			TransactionRef: "BNK-20260901-17",
		},
	}

	encoded, err := EncodePayment(original)
	if err != nil {
		t.Fatalf("EncodePayment() error = %v", err)
	}

	decoded, err := DecodePayment(encoded)
	if err != nil {
		t.Fatalf("DecodePayment() error = %v", err)
	}

	if !reflect.DeepEqual(decoded, original) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", decoded, original)
	}
}

func TestDecodePaymentErrors(t *testing.T) {
	tests := []struct {
		name    string
		encoded string
	}{
		{name: "invalid base64", encoded: "not-valid-base64!!!"},
		{name: "valid base64 but invalid JSON", encoded: base64.StdEncoding.EncodeToString([]byte("not json"))},
		{name: "empty string", encoded: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodePayment(tt.encoded); err == nil {
				t.Error("DecodePayment() expected error")
			}
		})
	}
}

func TestEncodeDecodeSettlement(t *testing.T) {
	tests := []struct {
		name       string
		settlement x402.SettleResponse
	}{
		{
			name: "successful crypto settlement",
			settlement: x402.SettleResponse{
				Success:     true,
				Transaction: "8ef0c6d60357bf61b05e276a72b0e25f50a2ab37ac0c60989e80a526786cd6c4",
				Network:     x402.NetworkStellarTestnet,
				Payer:       "GBSOURCEACCOUNT",
				Method:      x402.MethodCrypto,
			},
		},
		{
			name: "failed settlement",
			settlement: x402.SettleResponse{
				Success:      false,
				ErrorReason:  x402.ReasonInsufficientAmount,
				ErrorMessage: "payment amount below required minimum",
				Method:       x402.MethodCrypto,
			},
		},
		{
			name: "fiat settlement",
			settlement: x402.SettleResponse{
				Success:     true,
				Transaction: "PASATANDA-ORDER-1",
				Payer:       "BOB transfer",
				Method:      x402.MethodFiat,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := EncodeSettlement(tt.settlement)
			if err != nil {
				t.Fatalf("EncodeSettlement() error = %v", err)
			}

			decoded, err := DecodeSettlement(encoded)
			if err != nil {
				t.Fatalf("DecodeSettlement() error = %v", err)
			}

			if !reflect.DeepEqual(decoded, tt.settlement) {
				t.Errorf("round trip mismatch:\n got %+v\nwant %+v", decoded, tt.settlement)
			}
		})
	}
}

func TestEncodeDecodeRequirements(t *testing.T) {
	original := x402.PaymentRequired{
		X402Version: x402.X402Version,
		Error:       "Payment required",
		Resource:    "/orders/ORDER-1",
		JobID:       "6a1f8a04-1c25-4c5e-9f52-3f8d1f77a001",
		Accepts: []x402.PaymentOption{
			{
				Method: x402.MethodCrypto,
				Crypto: &x402.PaymentRequirements{
					Scheme:            x402.SchemeExact,
					Network:           x402.NetworkStellarTestnet,
					MaxAmountRequired: "100000000",
					Resource:          "/orders/ORDER-1",
					PayTo:             "GBPAYEEACCOUNT",
					Asset:             x402.AssetNative,
					MaxTimeoutSeconds: 300,
				},
			},
			{
				Method: x402.MethodFiat,
				Fiat: &x402.FiatOption{
					Currency:     "BOB",
					Symbol:       "Bs",
					Amount:       "69.60",
					ProofChannel: "qr",
				},
			},
		},
	}

	encoded, err := EncodeRequirements(original)
	if err != nil {
		t.Fatalf("EncodeRequirements() error = %v", err)
	}

	decoded, err := DecodeRequirements(encoded)
	if err != nil {
		t.Fatalf("DecodeRequirements() error = %v", err)
	}

	if !reflect.DeepEqual(decoded, original) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", decoded, original)
	}
}
