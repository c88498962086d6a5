/**
 * @description
 * This package generates PIX "copia e cola" payloads in the Brazilian EMV
 * format, suitable for rendering as QR codes by banking apps, and validates
 * PIX keys in their five accepted shapes (email, CPF, CNPJ, phone, random
 * UUID key).
 *
 * @dependencies
 * - github.com/shopspring/decimal: Exact BRL amounts in the amount field.
 * - fmt, regexp, strings: Standard Go libraries.
 */

package pix

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Data carries the fields rendered into an EMV payload.
type Data struct {
	PixKey       string
	Amount       *decimal.Decimal
	Description  string
	MerchantName string
	MerchantCity string
}

// emvField renders one EMV TLV field: id, two-digit length, value.
func emvField(id, value string) string {
	return fmt.Sprintf("%s%02d%s", id, len(value), value)
}

// GeneratePayload builds the EMV payload for a static or fixed-amount PIX
// charge, including the trailing CRC16 field.
func GeneratePayload(data Data) string {
	description := data.Description
	if description == "" {
		description = "Doacao Resgate Prime"
	}
	merchantName := data.MerchantName
	if merchantName == "" {
		merchantName = "RESGATE PRIME"
	}
	merchantCity := data.MerchantCity
	if merchantCity == "" {
		merchantCity = "SAO PAULO"
	}

	var b strings.Builder
	// Payload Format Indicator
	b.WriteString(emvField("00", "01"))
	// Merchant Account Information: GUI + PIX key
	merchantInfo := emvField("00", "BR.GOV.BCB.PIX") + emvField("01", data.PixKey)
	b.WriteString(emvField("26", merchantInfo))
	// Merchant Category Code
	b.WriteString(emvField("52", "0000"))
	// Transaction Currency, BRL = 986
	b.WriteString(emvField("53", "986"))
	// Transaction Amount, omitted for open-value charges
	if data.Amount != nil && data.Amount.IsPositive() {
		b.WriteString(emvField("54", data.Amount.StringFixed(2)))
	}
	// Country Code
	b.WriteString(emvField("58", "BR"))
	b.WriteString(emvField("59", merchantName))
	b.WriteString(emvField("60", merchantCity))
	// Additional Data Field Template: txid / description
	b.WriteString(emvField("62", emvField("05", description)))

	payload := b.String() + "6304"
	return payload + crc16(payload)
}

// crc16 computes CRC16-CCITT (polynomial 0x1021, initial 0xFFFF) over the
// payload, as required by the PIX EMV specification.
func crc16(data string) string {
	crc := uint16(0xFFFF)
	for i := 0; i < len(data); i++ {
		crc ^= uint16(data[i]) << 8
		for j := 0; j < 8; j++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return fmt.Sprintf("%04X", crc)
}

var (
	emailKey = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	cpfKey   = regexp.MustCompile(`^\d{11}$`)
	cnpjKey  = regexp.MustCompile(`^\d{14}$`)
	phoneKey = regexp.MustCompile(`^\+55\d{10,11}$`)
	evpKey   = regexp.MustCompile(`^(?i)[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
)

// ValidKey reports whether key is a well-formed PIX key of any accepted type.
func ValidKey(key string) bool {
	if strings.Contains(key, "@") {
		return emailKey.MatchString(key)
	}
	return cpfKey.MatchString(key) ||
		cnpjKey.MatchString(key) ||
		phoneKey.MatchString(key) ||
		evpKey.MatchString(key)
}
