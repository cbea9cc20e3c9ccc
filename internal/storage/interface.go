package storage

import "context"

// ReportArchiver persists batch run reports for audit.
type ReportArchiver interface {
	PutSyncReport(ctx context.Context, runID string, body []byte) error
}
