package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/pkordes/hidetrace/backend/internal/domain"
)

// LedgerRepo is the append-only custody ledger. There is no update or delete;
// the table trigger rejects both.
type LedgerRepo interface {
	// Append records one entry and returns its ID. A zero entry ID is
	// replaced with a fresh UUID.
	Append(ctx context.Context, e domain.Entry) (uuid.UUID, error)

	// HistoryForTag returns every entry naming tagCode, oldest first.
	HistoryForTag(ctx context.Context, tagCode string) ([]domain.Entry, error)

	// HistoryForProduct returns every entry naming productCode, oldest first.
	HistoryForProduct(ctx context.Context, productCode string) ([]domain.Entry, error)

	// List returns one page of entries matching f, newest first, plus the
	// total number of matches.
	List(ctx context.Context, f domain.TransactionFilter, p domain.PaginationParams) ([]domain.Entry, int64, error)

	// Summarize counts the entries visible under scope, by action.
	Summarize(ctx context.Context, scope domain.Scope) (domain.Summary, error)
}

// pgLedgerRepo is the Postgres implementation of LedgerRepo.
type pgLedgerRepo struct {
	db db
}

// NewLedgerRepo constructs a LedgerRepo backed by the provided db connection.
func NewLedgerRepo(db db) LedgerRepo {
	return &pgLedgerRepo{db: db}
}

const entryColumns = `id, user_id, actor_role, action, at, location, tag_code, product_code, stamp_code`

func (r *pgLedgerRepo) Append(ctx context.Context, e domain.Entry) (uuid.UUID, error) {
	const q = `
		INSERT INTO custody_entries (id, user_id, actor_role, action, at, location, tag_code, product_code, stamp_code)
		VALUES (@id, @user_id, @actor_role, @action, @at, @location, @tag_code, @product_code, @stamp_code)
		RETURNING id`

	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	args := pgx.NamedArgs{
		"id":           e.ID,
		"user_id":      e.UserID,
		"actor_role":   string(e.Role),
		"action":       string(e.Action),
		"at":           e.At,
		"location":     e.Location,
		"tag_code":     nullIfEmpty(e.TagCode),
		"product_code": nullIfEmpty(e.ProductCode),
		"stamp_code":   e.StampCode,
	}

	var id uuid.UUID
	if err := r.db.QueryRow(ctx, q, args).Scan(&id); err != nil {
		return uuid.Nil, fmt.Errorf("repo.LedgerRepo.Append: %w", mapError(err))
	}
	return id, nil
}

func (r *pgLedgerRepo) HistoryForTag(ctx context.Context, tagCode string) ([]domain.Entry, error) {
	const q = `SELECT ` + entryColumns + ` FROM custody_entries WHERE tag_code = @code ORDER BY at, seq`

	entries, err := r.collect(ctx, q, pgx.NamedArgs{"code": tagCode})
	if err != nil {
		return nil, fmt.Errorf("repo.LedgerRepo.HistoryForTag: %w", err)
	}
	return entries, nil
}

func (r *pgLedgerRepo) HistoryForProduct(ctx context.Context, productCode string) ([]domain.Entry, error) {
	const q = `SELECT ` + entryColumns + ` FROM custody_entries WHERE product_code = @code ORDER BY at, seq`

	entries, err := r.collect(ctx, q, pgx.NamedArgs{"code": productCode})
	if err != nil {
		return nil, fmt.Errorf("repo.LedgerRepo.HistoryForProduct: %w", err)
	}
	return entries, nil
}

// listWhere is shared by the page and count queries of List.
const listWhere = `
	WHERE (@all::boolean OR user_id = @user_id)
	  AND (@role = '' OR actor_role = @role)
	  AND (@search = '' OR tag_code ILIKE @pattern ESCAPE '\'
	                    OR stamp_code ILIKE @pattern ESCAPE '\'
	                    OR action ILIKE @pattern ESCAPE '\')`

func (r *pgLedgerRepo) List(ctx context.Context, f domain.TransactionFilter, p domain.PaginationParams) ([]domain.Entry, int64, error) {
	args := pgx.NamedArgs{
		"all":     f.Scope.All,
		"user_id": f.Scope.UserID,
		"role":    string(f.Role),
		"search":  f.Search,
		"pattern": likePattern(f.Search),
		"limit":   p.Limit,
		"offset":  p.Offset(),
	}

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM custody_entries`+listWhere, args).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("repo.LedgerRepo.List: count: %w", mapError(err))
	}

	q := `SELECT ` + entryColumns + ` FROM custody_entries` + listWhere + `
		ORDER BY at DESC, seq DESC
		LIMIT @limit OFFSET @offset`

	entries, err := r.collect(ctx, q, args)
	if err != nil {
		return nil, 0, fmt.Errorf("repo.LedgerRepo.List: %w", err)
	}
	return entries, total, nil
}

func (r *pgLedgerRepo) Summarize(ctx context.Context, scope domain.Scope) (domain.Summary, error) {
	const q = `
		SELECT count(*) FILTER (WHERE action = 'arrived'),
		       count(*) FILTER (WHERE action = 'dispatched'),
		       count(*) FILTER (WHERE action = 'data_entered')
		FROM custody_entries
		WHERE (@all::boolean OR user_id = @user_id)`

	var s domain.Summary
	args := pgx.NamedArgs{"all": scope.All, "user_id": scope.UserID}
	if err := r.db.QueryRow(ctx, q, args).Scan(&s.Arrived, &s.Dispatched, &s.DataEntered); err != nil {
		return domain.Summary{}, fmt.Errorf("repo.LedgerRepo.Summarize: %w", mapError(err))
	}
	return s, nil
}

func (r *pgLedgerRepo) collect(ctx context.Context, q string, args pgx.NamedArgs) ([]domain.Entry, error) {
	rows, err := r.db.Query(ctx, q, args)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []domain.Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return entries, nil
}

func scanEntry(s scanner) (domain.Entry, error) {
	var (
		e           domain.Entry
		role        string
		action      string
		tagCode     pgtype.Text
		productCode pgtype.Text
	)
	if err := s.Scan(&e.ID, &e.UserID, &role, &action, &e.At, &e.Location, &tagCode, &productCode, &e.StampCode); err != nil {
		return domain.Entry{}, err
	}
	e.Role = domain.Role(role)
	e.Action = domain.LedgerAction(action)
	e.TagCode = tagCode.String
	e.ProductCode = productCode.String
	return e, nil
}
