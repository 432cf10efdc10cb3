package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"thumbnailer/internal/domain"
	"thumbnailer/internal/infra"
	"thumbnailer/internal/sqlinline"
)

// PostgresStore persists requests in the thumbnail_requests table.
type PostgresStore struct {
	db infra.SQLExecutor
}

// NewPostgresStore wraps an executor, normally an *infra.SQLRunner.
func NewPostgresStore(db infra.SQLExecutor) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, req *domain.GenerationRequest) error {
	if req == nil {
		return fmt.Errorf("%w: request is required", domain.ErrValidation)
	}
	if err := req.Validate(); err != nil {
		return err
	}
	customizations, err := json.Marshal(req.Customizations)
	if err != nil {
		return fmt.Errorf("encode customizations: %w", err)
	}
	_, err = s.db.Exec(ctx, sqlinline.QInsertThumbnailRequest,
		req.ID,
		req.OriginalPrompt,
		customizations,
		req.UploadedImagePath,
		req.RefinedPrompt,
		req.GeneratedImagePath,
		string(req.Status),
		req.Locale,
		req.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert thumbnail request: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id string) (*domain.GenerationRequest, error) {
	req, err := scanRequest(s.db.QueryRow(ctx, sqlinline.QGetThumbnailRequest, id))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get thumbnail request: %w", err)
	}
	return req, nil
}

// Update merges non-nil fields in a single statement, so concurrent updates to
// the same row serialize on the row lock.
func (s *PostgresStore) Update(ctx context.Context, id string, update domain.RequestUpdate) (*domain.GenerationRequest, error) {
	var status *string
	if update.Status != nil {
		v := string(*update.Status)
		status = &v
	}
	req, err := scanRequest(s.db.QueryRow(ctx, sqlinline.QUpdateThumbnailRequest,
		id,
		status,
		update.RefinedPrompt,
		update.GeneratedImagePath,
	))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("update thumbnail request: %w", err)
	}
	return req, nil
}

func (s *PostgresStore) ListByStatus(ctx context.Context, status domain.Status) ([]domain.GenerationRequest, error) {
	var filter *string
	if status != "" {
		v := string(status)
		filter = &v
	}
	rows, err := s.db.Query(ctx, sqlinline.QListThumbnailRequests, filter)
	if err != nil {
		return nil, fmt.Errorf("list thumbnail requests: %w", err)
	}
	defer rows.Close()

	out := make([]domain.GenerationRequest, 0)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan thumbnail request: %w", err)
		}
		out = append(out, *req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list thumbnail requests: %w", err)
	}
	return out, nil
}

func scanRequest(row pgx.Row) (*domain.GenerationRequest, error) {
	var (
		req            domain.GenerationRequest
		customizations []byte
		status         string
	)
	if err := row.Scan(
		&req.ID,
		&req.OriginalPrompt,
		&customizations,
		&req.UploadedImagePath,
		&req.RefinedPrompt,
		&req.GeneratedImagePath,
		&status,
		&req.Locale,
		&req.CreatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(customizations, &req.Customizations); err != nil {
		return nil, fmt.Errorf("decode customizations: %w", err)
	}
	req.Status = domain.Status(status)
	return &req, nil
}

var _ domain.RequestStore = (*PostgresStore)(nil)
