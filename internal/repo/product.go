package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/pkordes/hidetrace/backend/internal/domain"
)

// ProductRepo defines the persistence operations for aggregated garment products.
type ProductRepo interface {
	// Create inserts a product. Returns a Conflict rejection if the code is taken.
	Create(ctx context.Context, p domain.Product) (domain.Product, error)

	// CodeExists reports whether any product uses code.
	CodeExists(ctx context.Context, code string) (bool, error)

	// GetByCode retrieves a product. Writable stores lock it for the rest of
	// the transaction. Returns domain.ErrNotFound if absent.
	GetByCode(ctx context.Context, code string) (domain.Product, error)

	// List returns one page of the products matching f, newest first, plus
	// the total number of matches.
	List(ctx context.Context, f domain.ProductFilter, p domain.PaginationParams) ([]domain.Product, int64, error)
}

// pgProductRepo is the Postgres implementation of ProductRepo.
type pgProductRepo struct {
	db   db
	lock string
}

// NewProductRepo constructs a ProductRepo backed by the provided db connection.
func NewProductRepo(db db) ProductRepo {
	return &pgProductRepo{db: db, lock: forUpdate}
}

const productColumns = `p.code, p.piece_count, p.product_types, p.other_product_type, p.brand, p.process_date, p.created_by, p.created_at`

func (r *pgProductRepo) Create(ctx context.Context, p domain.Product) (domain.Product, error) {
	const q = `
		INSERT INTO garment_products AS p (code, piece_count, product_types, other_product_type, brand, process_date, created_by)
		VALUES (@code, @piece_count, @product_types, @other_product_type, @brand, @process_date, @created_by)
		RETURNING ` + productColumns

	args := pgx.NamedArgs{
		"code":               p.Code,
		"piece_count":        p.PieceCount,
		"product_types":      p.ProductTypes.Strings(),
		"other_product_type": p.OtherProductType,
		"brand":              p.Brand,
		"process_date":       p.ProcessDate,
		"created_by":         p.CreatedBy,
	}

	result, err := scanProduct(r.db.QueryRow(ctx, q, args))
	if err != nil {
		return domain.Product{}, fmt.Errorf("repo.ProductRepo.Create: %w", mapError(err))
	}
	return result, nil
}

func (r *pgProductRepo) CodeExists(ctx context.Context, code string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM garment_products WHERE code = @code)`

	var exists bool
	if err := r.db.QueryRow(ctx, q, pgx.NamedArgs{"code": code}).Scan(&exists); err != nil {
		return false, fmt.Errorf("repo.ProductRepo.CodeExists: %w", mapError(err))
	}
	return exists, nil
}

func (r *pgProductRepo) GetByCode(ctx context.Context, code string) (domain.Product, error) {
	q := `SELECT ` + productColumns + ` FROM garment_products p WHERE p.code = @code` + r.lock

	result, err := scanProduct(r.db.QueryRow(ctx, q, pgx.NamedArgs{"code": code}))
	if err != nil {
		return domain.Product{}, fmt.Errorf("repo.ProductRepo.GetByCode: %w", mapError(err))
	}
	return result, nil
}

// productWhere is shared by the page and count queries of List. Each element
// of @terms is one escaped search pattern and all of them must match.
const productWhere = `
	WHERE (@all::boolean OR p.created_by = @user_id)
	  AND NOT EXISTS (
	      SELECT 1 FROM unnest(@terms::text[]) AS term
	      WHERE NOT (
	          p.code ILIKE term ESCAPE '\'
	          OR p.brand ILIKE term ESCAPE '\'
	          OR array_to_string(p.product_types, ' ') ILIKE term ESCAPE '\'
	          OR EXISTS (SELECT 1 FROM tags t WHERE t.product_code = p.code AND t.code ILIKE term ESCAPE '\')
	      )
	  )`

func (r *pgProductRepo) List(ctx context.Context, f domain.ProductFilter, p domain.PaginationParams) ([]domain.Product, int64, error) {
	terms := f.Terms()
	for i, term := range terms {
		terms[i] = likePattern(term)
	}
	args := pgx.NamedArgs{
		"all":     f.Scope.All,
		"user_id": f.Scope.UserID,
		"terms":   terms,
		"limit":   p.Limit,
		"offset":  p.Offset(),
	}

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM garment_products p`+productWhere, args).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("repo.ProductRepo.List: count: %w", mapError(err))
	}

	q := `SELECT ` + productColumns + ` FROM garment_products p` + productWhere + `
		ORDER BY p.created_at DESC, p.code
		LIMIT @limit OFFSET @offset`

	rows, err := r.db.Query(ctx, q, args)
	if err != nil {
		return nil, 0, fmt.Errorf("repo.ProductRepo.List: %w", err)
	}
	defer rows.Close()

	products := []domain.Product{}
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("repo.ProductRepo.List: scan: %w", err)
		}
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("repo.ProductRepo.List: rows: %w", err)
	}
	return products, total, nil
}

func scanProduct(s scanner) (domain.Product, error) {
	var (
		p     domain.Product
		types []string
	)
	err := s.Scan(&p.Code, &p.PieceCount, &types, &p.OtherProductType, &p.Brand, &p.ProcessDate, &p.CreatedBy, &p.CreatedAt)
	if err != nil {
		return domain.Product{}, err
	}
	if p.ProductTypes, err = domain.NewProductTypes(types); err != nil {
		return domain.Product{}, fmt.Errorf("stored product types: %w", err)
	}
	return p, nil
}
