package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/pkordes/hidetrace/backend/internal/domain"
)

// TagRepo defines the persistence operations for Tags.
type TagRepo interface {
	// Create inserts a new tag with every stage timestamp null.
	// Returns a Conflict rejection if the code is already taken.
	Create(ctx context.Context, tag domain.Tag) (domain.Tag, error)

	// CodeExists reports whether any tag uses code.
	CodeExists(ctx context.Context, code string) (bool, error)

	// GetByCode retrieves a tag by its primary code. Writable stores lock the
	// row for the rest of the transaction. Returns domain.ErrNotFound if absent.
	GetByCode(ctx context.Context, code string) (domain.Tag, error)

	// GetByStampCode retrieves the tag holding a tannery stamp code, locking
	// it like GetByCode. Returns domain.ErrNotFound if no tag holds the stamp.
	GetByStampCode(ctx context.Context, stamp string) (domain.Tag, error)

	// StampHolder returns the code of the tag holding stamp, or "" if none.
	StampHolder(ctx context.Context, stamp string) (string, error)

	// CountByConfirmation returns how many tags were minted from a confirmation.
	CountByConfirmation(ctx context.Context, confirmationID int64) (int, error)

	// Save writes the mutable stage, tannery and garment fields of a tag.
	// A stage timestamp, stamp code or product link already stored is never
	// overwritten. Returns domain.ErrNotFound if the tag does not exist.
	Save(ctx context.Context, tag domain.Tag) (domain.Tag, error)

	// ListByProduct returns the tags linked to a product, ordered by code.
	ListByProduct(ctx context.Context, productCode string) ([]domain.Tag, error)

	// IncrementPrints adds one to a tag's print counter and returns the new
	// count. Returns domain.ErrNotFound if the tag does not exist.
	IncrementPrints(ctx context.Context, code string) (int, error)

	// CountByHideSource counts tags per recorded hide source. Tags without a
	// hide source are not counted.
	CountByHideSource(ctx context.Context) (map[domain.HideSource]int64, error)
}

// pgTagRepo is the Postgres implementation of TagRepo. lock is appended to
// single-row reads; it is empty for read-only stores.
type pgTagRepo struct {
	db   db
	lock string
}

// NewTagRepo constructs a TagRepo backed by the provided db connection.
func NewTagRepo(db db) TagRepo {
	return &pgTagRepo{db: db, lock: forUpdate}
}

const tagColumns = `
	code, confirmation_id, legacy_tag, batch_no, total_animals, command,
	price::text, amount::text, owner_name, expiry_days, account_type,
	offal_collector, confirmed_at, total_tags, total_prints,
	trader_arrived, trader_dispatched, tannery_arrived, tannery_dispatched,
	garment_arrived, garment_dispatched,
	stamp_code, hide_source, vehicle_number, lot_number, destination, article, tannage_type,
	product_code, product_types, other_product_type, brand, process_date,
	print_count, created_by, created_at`

func (r *pgTagRepo) Create(ctx context.Context, tag domain.Tag) (domain.Tag, error) {
	const q = `
		INSERT INTO tags (
			code, confirmation_id, legacy_tag, batch_no, total_animals, command,
			price, amount, owner_name, expiry_days, account_type, offal_collector,
			confirmed_at, total_tags, total_prints, created_by
		) VALUES (
			@code, @confirmation_id, @legacy_tag, @batch_no, @total_animals, @command,
			COALESCE(NULLIF(@price, ''), '0')::numeric, COALESCE(NULLIF(@amount, ''), '0')::numeric,
			@owner_name, @expiry_days, @account_type, @offal_collector,
			@confirmed_at, @total_tags, @total_prints, @created_by
		)
		RETURNING ` + tagColumns

	o := tag.Origin
	args := pgx.NamedArgs{
		"code":            tag.Code,
		"confirmation_id": o.ConfirmationID,
		"legacy_tag":      o.LegacyTag,
		"batch_no":        o.BatchNo,
		"total_animals":   o.TotalAnimals,
		"command":         o.Command,
		"price":           o.Price,
		"amount":          o.Amount,
		"owner_name":      o.OwnerName,
		"expiry_days":     o.ExpiryDays,
		"account_type":    o.AccountType,
		"offal_collector": o.OffalCollector,
		"confirmed_at":    pgtype.Timestamptz{Time: o.ConfirmedAt, Valid: !o.ConfirmedAt.IsZero()},
		"total_tags":      o.TotalTags,
		"total_prints":    o.TotalPrints,
		"created_by":      tag.CreatedBy,
	}

	result, err := scanTag(r.db.QueryRow(ctx, q, args))
	if err != nil {
		return domain.Tag{}, fmt.Errorf("repo.TagRepo.Create: %w", mapError(err))
	}
	return result, nil
}

func (r *pgTagRepo) CodeExists(ctx context.Context, code string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM tags WHERE code = @code)`

	var exists bool
	if err := r.db.QueryRow(ctx, q, pgx.NamedArgs{"code": code}).Scan(&exists); err != nil {
		return false, fmt.Errorf("repo.TagRepo.CodeExists: %w", mapError(err))
	}
	return exists, nil
}

func (r *pgTagRepo) GetByCode(ctx context.Context, code string) (domain.Tag, error) {
	q := `SELECT ` + tagColumns + ` FROM tags WHERE code = @code` + r.lock

	result, err := scanTag(r.db.QueryRow(ctx, q, pgx.NamedArgs{"code": code}))
	if err != nil {
		return domain.Tag{}, fmt.Errorf("repo.TagRepo.GetByCode: %w", mapError(err))
	}
	return result, nil
}

func (r *pgTagRepo) GetByStampCode(ctx context.Context, stamp string) (domain.Tag, error) {
	q := `SELECT ` + tagColumns + ` FROM tags WHERE stamp_code = @stamp` + r.lock

	result, err := scanTag(r.db.QueryRow(ctx, q, pgx.NamedArgs{"stamp": stamp}))
	if err != nil {
		return domain.Tag{}, fmt.Errorf("repo.TagRepo.GetByStampCode: %w", mapError(err))
	}
	return result, nil
}

func (r *pgTagRepo) StampHolder(ctx context.Context, stamp string) (string, error) {
	const q = `SELECT code FROM tags WHERE stamp_code = @stamp`

	var code string
	if err := r.db.QueryRow(ctx, q, pgx.NamedArgs{"stamp": stamp}).Scan(&code); err != nil {
		err = mapError(err)
		if errors.Is(err, domain.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("repo.TagRepo.StampHolder: %w", err)
	}
	return code, nil
}

func (r *pgTagRepo) CountByConfirmation(ctx context.Context, confirmationID int64) (int, error) {
	const q = `SELECT count(*) FROM tags WHERE confirmation_id = @confirmation_id`

	var n int
	if err := r.db.QueryRow(ctx, q, pgx.NamedArgs{"confirmation_id": confirmationID}).Scan(&n); err != nil {
		return 0, fmt.Errorf("repo.TagRepo.CountByConfirmation: %w", mapError(err))
	}
	return n, nil
}

func (r *pgTagRepo) Save(ctx context.Context, tag domain.Tag) (domain.Tag, error) {
	const q = `
		UPDATE tags
		SET trader_arrived     = COALESCE(trader_arrived, @trader_arrived),
		    trader_dispatched  = COALESCE(trader_dispatched, @trader_dispatched),
		    tannery_arrived    = COALESCE(tannery_arrived, @tannery_arrived),
		    tannery_dispatched = COALESCE(tannery_dispatched, @tannery_dispatched),
		    garment_arrived    = COALESCE(garment_arrived, @garment_arrived),
		    garment_dispatched = COALESCE(garment_dispatched, @garment_dispatched),
		    stamp_code         = COALESCE(stamp_code, @stamp_code),
		    hide_source        = @hide_source,
		    vehicle_number     = @vehicle_number,
		    lot_number         = @lot_number,
		    destination        = @destination,
		    article            = @article,
		    tannage_type       = @tannage_type,
		    product_code       = COALESCE(product_code, @product_code),
		    product_types      = @product_types,
		    other_product_type = @other_product_type,
		    brand              = @brand,
		    process_date       = @process_date
		WHERE code = @code
		RETURNING ` + tagColumns

	st, tn, g := tag.Stages, tag.Tannery, tag.Garment
	args := pgx.NamedArgs{
		"code":               tag.Code,
		"trader_arrived":     st.TraderArrived,
		"trader_dispatched":  st.TraderDispatched,
		"tannery_arrived":    st.TanneryArrived,
		"tannery_dispatched": st.TanneryDispatched,
		"garment_arrived":    st.GarmentArrived,
		"garment_dispatched": st.GarmentDispatched,
		"stamp_code":         nullIfEmpty(tn.StampCode),
		"hide_source":        string(tn.HideSource),
		"vehicle_number":     tn.VehicleNumber,
		"lot_number":         tn.LotNumber,
		"destination":        tn.Destination,
		"article":            tn.Article,
		"tannage_type":       string(tn.TannageType),
		"product_code":       nullIfEmpty(g.ProductCode),
		"product_types":      g.ProductTypes.Strings(),
		"other_product_type": g.OtherProductType,
		"brand":              g.Brand,
		"process_date":       g.ProcessDate,
	}

	result, err := scanTag(r.db.QueryRow(ctx, q, args))
	if err != nil {
		return domain.Tag{}, fmt.Errorf("repo.TagRepo.Save: %w", mapError(err))
	}
	return result, nil
}

func (r *pgTagRepo) ListByProduct(ctx context.Context, productCode string) ([]domain.Tag, error) {
	q := `SELECT ` + tagColumns + ` FROM tags WHERE product_code = @product_code ORDER BY code`

	rows, err := r.db.Query(ctx, q, pgx.NamedArgs{"product_code": productCode})
	if err != nil {
		return nil, fmt.Errorf("repo.TagRepo.ListByProduct: %w", err)
	}
	defer rows.Close()

	tags := []domain.Tag{}
	for rows.Next() {
		t, err := scanTag(rows)
		if err != nil {
			return nil, fmt.Errorf("repo.TagRepo.ListByProduct: scan: %w", err)
		}
		tags = append(tags, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repo.TagRepo.ListByProduct: rows: %w", err)
	}
	return tags, nil
}

func (r *pgTagRepo) IncrementPrints(ctx context.Context, code string) (int, error) {
	const q = `UPDATE tags SET print_count = print_count + 1 WHERE code = @code RETURNING print_count`

	var n int
	if err := r.db.QueryRow(ctx, q, pgx.NamedArgs{"code": code}).Scan(&n); err != nil {
		return 0, fmt.Errorf("repo.TagRepo.IncrementPrints: %w", mapError(err))
	}
	return n, nil
}

func (r *pgTagRepo) CountByHideSource(ctx context.Context) (map[domain.HideSource]int64, error) {
	const q = `SELECT hide_source, count(*) FROM tags WHERE hide_source <> '' GROUP BY hide_source`

	rows, err := r.db.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("repo.TagRepo.CountByHideSource: %w", err)
	}
	defer rows.Close()

	counts := map[domain.HideSource]int64{}
	for rows.Next() {
		var (
			source string
			n      int64
		)
		if err := rows.Scan(&source, &n); err != nil {
			return nil, fmt.Errorf("repo.TagRepo.CountByHideSource: scan: %w", err)
		}
		counts[domain.HideSource(source)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repo.TagRepo.CountByHideSource: rows: %w", err)
	}
	return counts, nil
}

// scanTag maps a row selected with tagColumns into a domain.Tag.
func scanTag(s scanner) (domain.Tag, error) {
	var (
		t            domain.Tag
		confirmedAt  pgtype.Timestamptz
		stamp        pgtype.Text
		hideSource   string
		tannageType  string
		productCode  pgtype.Text
		productTypes []string
	)
	o, st, tn, g := &t.Origin, &t.Stages, &t.Tannery, &t.Garment

	err := s.Scan(
		&t.Code, &o.ConfirmationID, &o.LegacyTag, &o.BatchNo, &o.TotalAnimals, &o.Command,
		&o.Price, &o.Amount, &o.OwnerName, &o.ExpiryDays, &o.AccountType,
		&o.OffalCollector, &confirmedAt, &o.TotalTags, &o.TotalPrints,
		&st.TraderArrived, &st.TraderDispatched, &st.TanneryArrived, &st.TanneryDispatched,
		&st.GarmentArrived, &st.GarmentDispatched,
		&stamp, &hideSource, &tn.VehicleNumber, &tn.LotNumber, &tn.Destination, &tn.Article, &tannageType,
		&productCode, &productTypes, &g.OtherProductType, &g.Brand, &g.ProcessDate,
		&t.PrintCount, &t.CreatedBy, &t.CreatedAt,
	)
	if err != nil {
		return domain.Tag{}, err
	}

	if confirmedAt.Valid {
		o.ConfirmedAt = confirmedAt.Time
	}
	tn.StampCode = stamp.String
	tn.HideSource = domain.HideSource(hideSource)
	tn.TannageType = domain.TannageType(tannageType)
	g.ProductCode = productCode.String
	if g.ProductTypes, err = domain.NewProductTypes(productTypes); err != nil {
		return domain.Tag{}, fmt.Errorf("stored product types: %w", err)
	}
	return t, nil
}
