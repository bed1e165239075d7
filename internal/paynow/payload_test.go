package paynow

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

func TestCRC16(t *testing.T) {
	// Standard check value for CRC-16/CCITT-FALSE.
	if got := CRC16("123456789"); got != 0x29B1 {
		t.Errorf("CRC16(123456789) = %04X, want 29B1", got)
	}
}

func TestNormalizeMobile(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "91234567", want: "+6591234567"},
		{in: "8123 4567", want: "+6581234567"},
		{in: "+65 9123-4567", want: "+6591234567"},
		{in: "6591234567", want: "+6591234567"},
		{in: "61234567", wantErr: true},
		{in: "9123456", wantErr: true},
		{in: "9123456a", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeMobile(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NormalizeMobile(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("NormalizeMobile(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitizeText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"ascii", "PayPals Hotpot", 25, "PayPals Hotpot"},
		{"truncated", "PayPals A very long dinner name", 25, "PayPals A very long dinne"},
		{"no trailing space at cut", "PayPals Hotpot at Marina Bay", 18, "PayPals Hotpot at"},
		{"non-ascii dropped", "PayPals 晚餐 Dinner", 25, "PayPals Dinner"},
		{"only non-ascii", "晚餐聚会和朋友们一起吃饭", 25, ""},
		{"whitespace collapsed", "  Tea\t\n time  ", 25, "Tea time"},
		{"accented letters dropped", "Café Ünion", 25, "Caf nion"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeText(tt.in, tt.n)
			if got != tt.want {
				t.Errorf("SanitizeText(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
			}
			if len(got) > tt.n || !utf8.ValidString(got) {
				t.Errorf("SanitizeText(%q, %d) = %q is not %d ASCII bytes or fewer", tt.in, tt.n, got, tt.n)
			}
		})
	}
}

func TestPayloadString_NonASCIIText(t *testing.T) {
	got, err := Payload{
		ProxyType:    ProxyMobile,
		ProxyValue:   "+6591234567",
		Amount:       decimal.RequireFromString("5"),
		Reference:    "PayPals 晚餐聚会和朋友们一起吃饭",
		MerchantName: "陈",
	}.String()
	if err != nil {
		t.Fatalf("String() failed: %v", err)
	}
	if !utf8.ValidString(got) {
		t.Fatalf("payload is not valid UTF-8: %q", got)
	}
	for _, part := range []string{"5902NA", "62110107PayPals"} {
		if !strings.Contains(got, part) {
			t.Errorf("payload %q missing %q", got, part)
		}
	}
}

func TestPayloadString(t *testing.T) {
	p := Payload{
		ProxyType:    ProxyMobile,
		ProxyValue:   "+6591234567",
		Amount:       decimal.RequireFromString("12.5"),
		Reference:    "PAYPALS-ABCDEF12",
		MerchantName: "Alice Tan",
		Expiry:       time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
	}

	got, err := p.String()
	if err != nil {
		t.Fatalf("String() failed: %v", err)
	}

	for _, part := range []string{
		"000201",
		"010212",
		"0009SG.PAYNOW",
		"01010",
		"0211+6591234567",
		"03010",
		"040820261231",
		"52040000",
		"5303702",
		"540512.50",
		"5802SG",
		"5909Alice Tan",
		"6009Singapore",
		"62200116PAYPALS-ABCDEF12",
	} {
		if !strings.Contains(got, part) {
			t.Errorf("payload %q missing %q", got, part)
		}
	}

	// The last four characters are the CRC of everything before them.
	body, crc := got[:len(got)-4], got[len(got)-4:]
	if !strings.HasSuffix(body, "6304") {
		t.Fatalf("payload body should end with CRC tag, got %q", body)
	}
	if want := strings.ToUpper(hex4(CRC16(body))); crc != want {
		t.Errorf("crc = %s, want %s", crc, want)
	}
}

func TestPayloadString_Errors(t *testing.T) {
	_, err := Payload{ProxyValue: "+6591234567", Amount: decimal.Zero}.String()
	if !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount, got %v", err)
	}

	_, err = Payload{Amount: decimal.NewFromInt(1)}.String()
	if !errors.Is(err, ErrMissingProxy) {
		t.Errorf("expected ErrMissingProxy, got %v", err)
	}
}

func TestQRCodePNG(t *testing.T) {
	png, err := QRCodePNG("00020101021226", 0)
	if err != nil {
		t.Fatalf("QRCodePNG failed: %v", err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Error("expected PNG signature")
	}
}

func hex4(v uint16) string {
	const digits = "0123456789ABCDEF"
	return string([]byte{digits[v>>12&0xF], digits[v>>8&0xF], digits[v>>4&0xF], digits[v&0xF]})
}
