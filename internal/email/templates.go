package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

type baseEmailData struct {
	Title      string
	Heading    string
	Subheading string
	CTALabel   string
	CTAURL     string
}

type operatorAlertEmailData struct {
	baseEmailData
	RequestID string
	Summary   string
	OldStatus string
	NewStatus string
	Reason    string
}

func renderEmailTemplate(name string, data any) (string, error) {
	templates := []string{"templates/base.html", "templates/" + name}
	tmpl, err := template.New("base.html").ParseFS(templateFS, templates...)
	if err != nil {
		return "", fmt.Errorf("parse email template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "email", data); err != nil {
		return "", fmt.Errorf("execute email template %s: %w", name, err)
	}
	return buf.String(), nil
}

// RenderOperatorAlert returns the subject and HTML body for an alert.
func RenderOperatorAlert(alert OperatorAlert) (string, string, error) {
	subject := fmt.Sprintf(alertSubjectFormat(alert.Action), alert.RequestID)
	heading := alertHeading(alert.Action)
	content, err := renderEmailTemplate("operator_alert.html", operatorAlertEmailData{
		baseEmailData: baseEmailData{
			Title:    subject,
			Heading:  heading,
			CTALabel: "Open request",
			CTAURL:   alert.Link,
		},
		RequestID: alert.RequestID,
		Summary:   alertSummary(alert.Action),
		OldStatus: alert.OldStatus,
		NewStatus: alert.NewStatus,
		Reason:    alert.Reason,
	})
	if err != nil {
		return "", "", err
	}
	return subject, content, nil
}

func alertHeading(action string) string {
	switch action {
	case AlertNewRequest:
		return "New service request"
	case AlertAssignmentRejected:
		return "Assignment rejected"
	case AlertProofUploaded:
		return "Payment proof uploaded"
	case AlertStaleAssignment:
		return "Assignment waiting"
	default:
		return "Request update"
	}
}

func alertSummary(action string) string {
	switch action {
	case AlertNewRequest:
		return "A customer submitted a new request. Assign a technician to get it moving."
	case AlertAssignmentRejected:
		return "The technician declined the assignment. The request is back in the pending queue."
	case AlertProofUploaded:
		return "The customer uploaded proof of payment. Verify it to close the request."
	case AlertStaleAssignment:
		return "The assigned technician has not responded yet. Consider reassigning."
	default:
		return "A request changed status."
	}
}
