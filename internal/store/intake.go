package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/verdia/trellis/internal/models"
	"github.com/verdia/trellis/internal/realtime"
)

// DiagnosisIntake adapts the store's newest diagnosis report into the
// engine's intake source, feeding the one-time handoff that opens a
// conversation with the structured diagnosis instead of a blank thread.
type DiagnosisIntake struct {
	Store *Store
}

// Payload implements realtime.IntakeSource.
func (d DiagnosisIntake) Payload(ctx context.Context, userID string) (*realtime.IntakePayload, error) {
	report, err := d.Store.LatestDiagnosis(ctx, userID)
	if err != nil || report == nil {
		return nil, err
	}
	return &realtime.IntakePayload{
		Body:          formatIntakeBody(report),
		AttachmentURL: report.ImageURL,
	}, nil
}

// formatIntakeBody renders a diagnosis report as the opening message text.
func formatIntakeBody(report *models.DiagnosisReport) string {
	var b strings.Builder
	b.WriteString("Diagnosis report")
	if report.PlantName != "" {
		fmt.Fprintf(&b, " for %s", report.PlantName)
	}
	if report.Summary != "" {
		b.WriteString("\n")
		b.WriteString(report.Summary)
	}
	return b.String()
}
