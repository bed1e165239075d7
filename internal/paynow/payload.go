// Package paynow builds Singapore PayNow (SGQR / EMVCo) payment payloads and QR images.
package paynow

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Proxy types for the PayNow merchant account template.
const (
	ProxyMobile = 0
	ProxyUEN    = 2
)

var (
	ErrInvalidMobile = errors.New("paynow: mobile number must be a Singapore number starting with 8 or 9")
	ErrInvalidAmount = errors.New("paynow: amount must be greater than zero")
	ErrMissingProxy  = errors.New("paynow: proxy value required")
)

// Payload describes a PayNow payment request.
type Payload struct {
	ProxyType  int
	ProxyValue string
	Amount     decimal.Decimal
	// Reference is shown to the payer and echoed on the payee's statement (max 25 chars).
	Reference    string
	MerchantName string
	// Editable lets the payer change the amount before paying.
	Editable bool
	// Expiry is optional; zero means the code does not expire.
	Expiry time.Time
}

// NormalizeMobile converts local or international forms to +65XXXXXXXX.
func NormalizeMobile(phone string) (string, error) {
	p := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(strings.TrimSpace(phone))
	p = strings.TrimPrefix(p, "+")
	if len(p) == 10 && strings.HasPrefix(p, "65") {
		p = p[2:]
	}
	if len(p) != 8 || (p[0] != '8' && p[0] != '9') {
		return "", ErrInvalidMobile
	}
	for _, r := range p {
		if r < '0' || r > '9' {
			return "", ErrInvalidMobile
		}
	}
	return "+65" + p, nil
}

// tlv encodes one EMVCo data object: 2-digit id, 2-digit length, value.
// The length counts bytes, so free text must go through SanitizeText first.
func tlv(id, value string) string {
	return fmt.Sprintf("%s%02d%s", id, len(value), value)
}

// String encodes the payload, including the trailing CRC.
func (p Payload) String() (string, error) {
	if p.ProxyValue == "" {
		return "", ErrMissingProxy
	}
	if !p.Amount.IsPositive() {
		return "", ErrInvalidAmount
	}

	editable := "0"
	if p.Editable {
		editable = "1"
	}
	account := tlv("00", "SG.PAYNOW") +
		tlv("01", fmt.Sprintf("%d", p.ProxyType)) +
		tlv("02", p.ProxyValue) +
		tlv("03", editable)
	if !p.Expiry.IsZero() {
		account += tlv("04", p.Expiry.Format("20060102"))
	}

	merchant := SanitizeText(p.MerchantName, 25)
	if merchant == "" {
		merchant = "NA"
	}

	var b strings.Builder
	b.WriteString(tlv("00", "01"))
	b.WriteString(tlv("01", "12"))
	b.WriteString(tlv("26", account))
	b.WriteString(tlv("52", "0000"))
	b.WriteString(tlv("53", "702"))
	b.WriteString(tlv("54", p.Amount.Round(2).StringFixed(2)))
	b.WriteString(tlv("58", "SG"))
	b.WriteString(tlv("59", merchant))
	b.WriteString(tlv("60", "Singapore"))
	if ref := SanitizeText(p.Reference, 25); ref != "" {
		b.WriteString(tlv("62", tlv("01", ref)))
	}
	b.WriteString("6304")

	crc := CRC16(b.String())
	b.WriteString(fmt.Sprintf("%04X", crc))
	return b.String(), nil
}

// CRC16 computes CRC-16/CCITT-FALSE (poly 0x1021, init 0xFFFF) as required by EMVCo.
func CRC16(data string) uint16 {
	crc := uint16(0xFFFF)
	for i := 0; i < len(data); i++ {
		crc ^= uint16(data[i]) << 8
		for bit := 0; bit < 8; bit++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// SanitizeText reduces s to at most n characters of the EMVCo common
// character set (printable ASCII). Other characters are dropped, runs of
// spaces collapse to one, and the result is trimmed.
func SanitizeText(s string, n int) string {
	var b strings.Builder
	space := false
	for _, r := range s {
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			space = b.Len() > 0
			continue
		case r < 0x21 || r > 0x7E:
			continue
		}
		if space {
			if b.Len()+1 >= n {
				break
			}
			b.WriteByte(' ')
			space = false
		}
		if b.Len() >= n {
			break
		}
		b.WriteRune(r)
	}
	return b.String()
}
