package payment

import (
	"fmt"
	"strings"
	"time"
)

// PayNowQR holds the fields encoded into an SGQR PayNow string.
type PayNowQR struct {
	UEN          string
	MerchantName string
	Amount       float64
	Reference    string
	Expiry       time.Time
}

// Payload renders the EMVCo merchant-presented string, including the trailing CRC.
func (q PayNowQR) Payload() string {
	merchant := tlv("00", "SG.PAYNOW") +
		tlv("01", "2") +
		tlv("02", q.UEN) +
		tlv("03", "0")
	if !q.Expiry.IsZero() {
		merchant += tlv("04", q.Expiry.Format("20060102"))
	}

	var b strings.Builder
	b.WriteString(tlv("00", "01"))
	b.WriteString(tlv("01", "12"))
	b.WriteString(tlv("26", merchant))
	b.WriteString(tlv("52", "0000"))
	b.WriteString(tlv("53", "702"))
	b.WriteString(tlv("54", fmt.Sprintf("%.2f", q.Amount)))
	b.WriteString(tlv("58", "SG"))
	b.WriteString(tlv("59", truncate(q.MerchantName, 25)))
	b.WriteString(tlv("60", "Singapore"))
	if q.Reference != "" {
		b.WriteString(tlv("62", tlv("01", truncate(q.Reference, 25))))
	}
	b.WriteString("6304")
	body := b.String()
	return body + fmt.Sprintf("%04X", crc16CCITT([]byte(body)))
}

func tlv(id, value string) string {
	return fmt.Sprintf("%s%02d%s", id, len(value), value)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) > n {
		return s[:n]
	}
	return s
}

// crc16CCITT is the CRC-16/CCITT-FALSE checksum required by EMVCo QR payloads.
func crc16CCITT(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
