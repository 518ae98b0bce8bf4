package whatsapp

import (
	"fmt"
	"io"

	"github.com/skip2/go-qrcode"
)

// printQR renders code as a compact terminal QR for headless pairing.
func printQR(w io.Writer, branch, code string) error {
	q, err := qrcode.New(code, qrcode.Medium)
	if err != nil {
		return fmt.Errorf("encode qr: %w", err)
	}
	_, err = fmt.Fprintf(w, "Scan to pair %s:\n%s\n", branch, q.ToSmallString(false))
	return err
}
