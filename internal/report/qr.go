package report

import (
	"fmt"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

const defaultQRSize = 128

// DigestToQR creates a QR code PNG encoding the hex digest of the source file.
func DigestToQR(digest string, size int) ([]byte, error) {
	normalized := normalizeDigest(digest)
	if normalized == "" {
		return nil, fmt.Errorf("digest is empty")
	}
	if size <= 0 {
		size = defaultQRSize
	}
	return qrcode.Encode(normalized, qrcode.Medium, size)
}

// normalizeDigest keeps only hex digits, upper-cased so the QR code can use
// alphanumeric mode.
func normalizeDigest(digest string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(strings.TrimSpace(digest)) {
		if (r >= '0' && r <= '9') || (r >= 'A' && r <= 'F') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
