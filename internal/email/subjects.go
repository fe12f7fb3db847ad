package email

const (
	subjectNewRequestFmt         = "New service request %s"
	subjectAssignmentRejectedFmt = "Assignment rejected for %s"
	subjectProofUploadedFmt      = "Payment proof uploaded for %s"
	subjectStaleAssignmentFmt    = "Request %s is waiting for a technician"
	subjectGenericAlertFmt       = "Request %s needs attention"
)

// Alert actions understood by the operator alert template.
const (
	AlertNewRequest         = "create"
	AlertAssignmentRejected = "reject_assignment"
	AlertProofUploaded      = "upload_proof"
	AlertStaleAssignment    = "stale_assignment"
)

func alertSubjectFormat(action string) string {
	switch action {
	case AlertNewRequest:
		return subjectNewRequestFmt
	case AlertAssignmentRejected:
		return subjectAssignmentRejectedFmt
	case AlertProofUploaded:
		return subjectProofUploadedFmt
	case AlertStaleAssignment:
		return subjectStaleAssignmentFmt
	default:
		return subjectGenericAlertFmt
	}
}
