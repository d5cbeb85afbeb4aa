package voucher

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/signintech/gopdf"
)

type PDFGenerator struct {
	FontPath string
}

func NewPDFGenerator() *PDFGenerator {
	return &PDFGenerator{FontPath: "./fonts/DejaVuSans.ttf"}
}

// Generate renders a printable voucher with the transfer details and the
// encrypted QR code.
func (g *PDFGenerator) Generate(v TransferVoucher, qrCode []byte) ([]byte, error) {
	pdf := &gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	pdf.AddPage()

	if err := pdf.AddTTFFont("dejavu", g.FontPath); err != nil {
		return nil, fmt.Errorf("failed to load font: %w", err)
	}

	if err := pdf.SetFont("dejavu", "", 18); err != nil {
		return nil, fmt.Errorf("failed to set font: %w", err)
	}
	pdf.SetXY(40, 40)
	pdf.Cell(nil, "Bib Transfer Voucher")

	if err := pdf.SetFont("dejavu", "", 12); err != nil {
		return nil, fmt.Errorf("failed to set font: %w", err)
	}

	lines := []string{
		fmt.Sprintf("Transaction: %s", v.TransactionID),
		fmt.Sprintf("Event: %s", v.EventID),
		fmt.Sprintf("Registration number: %s", v.RegistrationNumber),
		fmt.Sprintf("Issued: %s", v.IssuedAt.Format("2006-01-02 15:04")),
	}
	if v.BuyerName != "" {
		lines = append(lines, fmt.Sprintf("Runner: %s", v.BuyerName))
	}
	y := 80.0
	for _, line := range lines {
		pdf.SetXY(40, y)
		pdf.Cell(nil, line)
		y += 20
	}

	if len(qrCode) > 0 {
		img, err := png.Decode(bytes.NewReader(qrCode))
		if err != nil {
			return nil, fmt.Errorf("failed to decode QR image: %w", err)
		}
		if err := pdf.ImageFrom(img, 40, y+20, &gopdf.Rect{W: 180, H: 180}); err != nil {
			return nil, fmt.Errorf("failed to place QR image: %w", err)
		}
	}

	pdf.SetXY(40, 780)
	pdf.Cell(nil, "Present this voucher at bib pickup together with a photo ID.")

	var buf bytes.Buffer
	if err := pdf.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	return buf.Bytes(), nil
}
