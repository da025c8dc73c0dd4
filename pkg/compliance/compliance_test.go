package compliance

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 8, 3, 6, 0, 0, 0, time.UTC)

func TestChecks(t *testing.T) {
	checks := Checks()
	require.Len(t, checks, 5)

	failing := Failing(checks)
	require.Len(t, failing, 1)
	assert.Equal(t, "Port Security (802.1x)", failing[0].Name)
	assert.Equal(t, "NON-COMPLIANT - Action Required", failing[0].Status())
	assert.Equal(t, "COMPLIANT", checks[0].Status())
}

func TestRender(t *testing.T) {
	tests := []struct {
		report ReportType
		want   []string
	}{
		{report: DailySecuritySummary, want: []string{"Controls passing: 4/5", "Action required: Port Security (802.1x)"}},
		{report: ComplianceAuditFull, want: []string{"CONTROL", "Log Retention Policy", "NON-COMPLIANT"}},
		{report: IncidentResponseLog, want: []string{"INC-001 Port Security (802.1x)"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.report), func(t *testing.T) {
			out, err := Render(tt.report, Checks(), now)
			require.NoError(t, err)

			text := string(out)
			assert.True(t, strings.HasPrefix(text, string(tt.report)+"\n"))
			assert.Contains(t, text, "Generated: 2026-08-03T06:00:00Z")
			for _, w := range tt.want {
				assert.Contains(t, text, w)
			}
		})
	}
}

func TestRenderAllCompliant(t *testing.T) {
	out, err := Render(IncidentResponseLog, []Check{{Name: "MFA", Compliant: true}}, now)
	require.NoError(t, err)
	assert.Contains(t, string(out), "No open compliance incidents.")
}

func TestRenderUnknownReport(t *testing.T) {
	_, err := Render("Weekly Gossip", Checks(), now)
	assert.ErrorIs(t, err, ErrUnknownReport)

	_, err = ParseReportType("")
	assert.ErrorIs(t, err, ErrUnknownReport)
}
