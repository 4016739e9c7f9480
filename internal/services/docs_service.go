package services

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/phpdave11/gofpdf"

	"bookingcore/internal/domain"
	"bookingcore/internal/domain/models"
	"bookingcore/internal/utils"
)

// DocsService renders customer documents for bookings.
type DocsService struct {
	Deps
}

func NewDocsService(d Deps) DocsService { return DocsService{Deps: d} }

// RefundReceipt renders a PDF for a completed refund.
func (s DocsService) RefundReceipt(ctx context.Context, id int64) ([]byte, string, error) {
	b, err := s.Store.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	c := b.Cancellation
	if b.Status != domain.StatusCancelled || c == nil || c.RefundStatus != domain.RefundCompleted {
		return nil, "", domain.StateError{Op: "refund receipt", Msg: "refund not completed"}
	}
	s.log().Info("generate refund receipt", "booking_id", id, "request_id", s.RequestID)
	return buildRefundReceiptPDF(b, s.now())
}

func buildRefundReceiptPDF(b models.Booking, printedAt time.Time) ([]byte, string, error) {
	c := b.Cancellation

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Refund Receipt", false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, "REFUND RECEIPT")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 7, "Receipt No  : RF-"+utils.SafeFilenamePart(b.BookingNumber))
	pdf.Ln(7)
	pdf.Cell(0, 7, "Printed     : "+utils.FormatDateTime(printedAt))
	pdf.Ln(10)

	lines := []string{
		fmt.Sprintf("Booking        : %s", utils.OrDash(b.BookingNumber)),
		fmt.Sprintf("Customer       : %s", utils.OrDash(b.CustomerID)),
		fmt.Sprintf("Trip           : %s, %.1f km", utils.OrDash(b.Pricing.TripType), b.Pricing.DistanceKm),
		fmt.Sprintf("Cancelled at   : %s", utils.FormatDateTime(c.CancelledAt)),
		fmt.Sprintf("Reason         : %s", utils.OrDash(c.Reason)),
		fmt.Sprintf("Refund method  : %s", utils.OrDash(string(c.RefundMethod))),
		fmt.Sprintf("Reference      : %s", utils.OrDash(c.RefundReference)),
	}
	if c.RefundCompletedAt != nil {
		lines = append(lines, fmt.Sprintf("Completed at   : %s", utils.FormatDateTime(*c.RefundCompletedAt)))
	}
	for _, l := range lines {
		pdf.Cell(0, 7, l)
		pdf.Ln(7)
	}
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 6, "Fare charged : "+utils.FormatMoney(b.Pricing.TotalAmount))
	pdf.Ln(6)
	pdf.Cell(0, 6, "Amount paid  : "+utils.FormatMoney(b.Payment.SettledAmount()))
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Refunded: "+utils.FormatMoney(c.RefundAmount))
	pdf.Ln(12)

	if c.UnrefundedAmount > 0 {
		pdf.SetFont("Helvetica", "I", 10)
		pdf.MultiCell(0, 6, fmt.Sprintf("A further %s was received after this refund started and is under review.", utils.FormatMoney(c.UnrefundedAmount)), "", "", false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), fmt.Sprintf("REFUND_%s.pdf", utils.SafeFilenamePart(b.BookingNumber)), nil
}
