// Package legacy reads slaughter confirmations from the point-of-sale
// database. The custody service never writes to it.
package legacy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/XSAM/otelsql"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver wrapped below
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"github.com/pkordes/hidetrace/backend/internal/domain"
)

var sqlOpen = sql.Open

// Open connects to the point-of-sale database through the pgx stdlib driver
// wrapped with otelsql, so every lookup shows up as a span.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	driverName, err := otelsql.Register("pgx",
		otelsql.WithAttributes(semconv.DBSystemPostgreSQL),
		otelsql.WithSQLCommenter(true),
	)
	if err != nil {
		return nil, fmt.Errorf("legacy.Open: register otelsql: %w", err)
	}

	db, err := sqlOpen(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("legacy.Open: sql open: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("legacy.Open: ping: %w", err)
	}
	return db, nil
}

// Source looks up confirmations by their legacy integer id.
type Source struct {
	db *sql.DB
}

// NewSource returns a Source reading from db.
func NewSource(db *sql.DB) *Source {
	return &Source{db: db}
}

const confirmationQuery = `
	SELECT c.id, c.datetime, COALESCE(c.prints_counter, 0),
	       m.old_batch_no, m.owner_name, m.expiry_days,
	       COALESCE(t.type, ''), COALESCE(o.name, ''),
	       COALESCE(ce.command, ''), ce.total_animals,
	       ce.price::text, ce.amount::text
	FROM confirmations c
	JOIN cash_entries ce ON ce.id = c.cash_entry_id
	JOIN members m ON m.id = ce.member_id
	LEFT JOIN member_account_types t ON t.id = m.account_type_id
	LEFT JOIN offal_collectors o ON o.id = ce.offal_collector_id
	WHERE c.id = $1`

const legacyTagsQuery = `SELECT tag FROM tags WHERE confirmation_id = $1 ORDER BY id`

// Confirmation returns the confirmation with the given id together with the
// labels of its legacy tag rows. Returns domain.ErrNotFound if the feed has
// no such confirmation.
func (s *Source) Confirmation(ctx context.Context, id int64) (domain.Confirmation, error) {
	var c domain.Confirmation
	err := s.db.QueryRowContext(ctx, confirmationQuery, id).Scan(
		&c.ID, &c.ConfirmedAt, &c.PrintsCounter,
		&c.BatchNo, &c.OwnerName, &c.ExpiryDays,
		&c.AccountType, &c.OffalCollector,
		&c.Command, &c.TotalAnimals,
		&c.Price, &c.Amount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Confirmation{}, domain.Reject(domain.ErrNotFound, domain.ReasonUnknownReference,
			"confirmation %d not found", id)
	}
	if err != nil {
		return domain.Confirmation{}, fmt.Errorf("legacy.Source.Confirmation: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, legacyTagsQuery, id)
	if err != nil {
		return domain.Confirmation{}, fmt.Errorf("legacy.Source.Confirmation: tags: %w", err)
	}
	defer rows.Close()

	c.LegacyTags = []string{}
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return domain.Confirmation{}, fmt.Errorf("legacy.Source.Confirmation: scan tag: %w", err)
		}
		c.LegacyTags = append(c.LegacyTags, tag)
	}
	if err := rows.Err(); err != nil {
		return domain.Confirmation{}, fmt.Errorf("legacy.Source.Confirmation: rows: %w", err)
	}
	return c, nil
}
