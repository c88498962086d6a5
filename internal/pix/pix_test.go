package pix

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestGeneratePayloadStructure(t *testing.T) {
	amount := decimal.RequireFromString("10.50")
	payload := GeneratePayload(Data{
		PixKey:       "doacoes@resgateprime.org",
		Amount:       &amount,
		MerchantName: "RESGATE PRIME",
		MerchantCity: "SAO PAULO",
	})

	if !strings.HasPrefix(payload, "000201") {
		t.Errorf("payload should start with the format indicator, got %q", payload[:10])
	}
	if !strings.Contains(payload, "BR.GOV.BCB.PIX") {
		t.Error("payload missing the PIX GUI")
	}
	if !strings.Contains(payload, "doacoes@resgateprime.org") {
		t.Error("payload missing the PIX key")
	}
	if !strings.Contains(payload, "540510.50") {
		t.Error("payload missing the amount field 54 with value 10.50")
	}
	if !strings.Contains(payload, "5802BR") {
		t.Error("payload missing the country code field")
	}

	// The payload ends with field 63 carrying a 4-hex-digit CRC.
	idx := strings.LastIndex(payload, "6304")
	if idx == -1 || len(payload)-idx != 8 {
		t.Fatalf("payload does not end with a CRC field: %q", payload)
	}
	wantCRC := crc16(payload[:idx+4])
	if got := payload[idx+4:]; got != wantCRC {
		t.Errorf("CRC = %s, want %s", got, wantCRC)
	}
}

func TestGeneratePayloadOmitsAmountWhenOpen(t *testing.T) {
	payload := GeneratePayload(Data{PixKey: "11999887766"})
	// With no amount, the country code field follows the currency directly.
	if !strings.Contains(payload, "53039865802BR") {
		t.Errorf("open-value payload should skip field 54: %q", payload)
	}
}

func TestCRC16KnownVector(t *testing.T) {
	// CRC16-CCITT with init 0xFFFF over "123456789" is the standard check
	// value 0x29B1.
	if got := crc16("123456789"); got != "29B1" {
		t.Errorf("crc16(123456789) = %s, want 29B1", got)
	}
}

func TestValidKey(t *testing.T) {
	valid := []string{
		"user@example.com",
		"12345678901",
		"12345678000190",
		"+5511999887766",
		"123e4567-e89b-42d3-a456-426614174000",
	}
	for _, key := range valid {
		if !ValidKey(key) {
			t.Errorf("ValidKey(%q) = false, want true", key)
		}
	}

	invalid := []string{
		"",
		"not an email@",
		"@missing.local",
		"1234567890",
		"123456789012",
		"+5599",
		"not-a-uuid",
	}
	for _, key := range invalid {
		if ValidKey(key) {
			t.Errorf("ValidKey(%q) = true, want false", key)
		}
	}
}
