package grading

import "context"

// Engine port (interface untuk AI grading workflow engine)
type Engine interface {
	Submit(ctx context.Context, req SubmitRequest) (SubmitResponse, error)
	Status(ctx context.Context, id RunID) (StatusResponse, error)
}

// ReportStore port (interface untuk arsip laporan markdown)
type ReportStore interface {
	PutReport(ctx context.Context, key, markdown string) (string, error)
}
