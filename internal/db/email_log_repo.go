package db

import (
	"context"

	"valor/internal/types"
)

type EmailLogRepo struct {
	db DBTX
}

func NewEmailLogRepo(db DBTX) *EmailLogRepo {
	return &EmailLogRepo{db: db}
}

func (r *EmailLogRepo) Record(ctx context.Context, e types.EmailLogEntry) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO emails_sent (to_email, subject, html_content, sent_at) VALUES ($1, $2, $3, $4)`,
		e.ToEmail, e.Subject, e.HTMLContent, e.SentAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record sent email", err)
	}
	return nil
}
