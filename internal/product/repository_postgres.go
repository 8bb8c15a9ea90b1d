package product

import (
	"database/sql"
	"errors"

	"github.com/gofiber/fiber/v2/log"
	"github.com/lib/pq"
)

type PostgresRepository struct {
	db *sql.DB
}

const (
	createProductTableQuery = `
		CREATE TABLE IF NOT EXISTS product (
			product_id SERIAL PRIMARY KEY,
			product_name TEXT NOT NULL,
			product_pic TEXT,
			product_price INT NOT NULL DEFAULT 0,
			product_path TEXT UNIQUE NOT NULL
		)
	`
	listProductsQuery = `
		SELECT product_id, product_name, product_pic, product_price, product_path
		FROM product
		ORDER BY product_id
	`
	getProductByIDQuery = `
		SELECT product_id, product_name, product_pic, product_price, product_path
		FROM product
		WHERE product_id = $1
	`
	getProductByPathQuery = `
		SELECT product_id, product_name, product_pic, product_price, product_path
		FROM product
		WHERE product_path = $1
	`
	listProductsByIDsQuery = `
		SELECT product_id, product_name, product_pic, product_price, product_path
		FROM product
		WHERE product_id = ANY($1::int[])
		ORDER BY array_position($1::int[], product_id)
	`
	insertProductQuery = `
		INSERT INTO product (product_name, product_pic, product_price, product_path)
		VALUES ($1,$2,$3,$4)
		RETURNING product_id
	`
)

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// EnsureSchema creates the product table if it does not exist.
func (r *PostgresRepository) EnsureSchema() error {
	_, err := r.db.Exec(createProductTableQuery)
	return err
}

func (r *PostgresRepository) List() []Product {
	rows, err := r.db.Query(listProductsQuery)
	if err != nil {
		log.Errorf("product: list: %v", err)
		return []Product{}
	}
	defer rows.Close()

	out := make([]Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	return out
}

// ListByIDs returns the products with the given ids in the order requested.
// Unknown ids are skipped.
func (r *PostgresRepository) ListByIDs(ids []int) ([]Product, error) {
	if len(ids) == 0 {
		return []Product{}, nil
	}

	rows, err := r.db.Query(listProductsByIDsQuery, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Product, 0, len(ids))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) GetByID(id int) (Product, error) {
	return r.getOne(getProductByIDQuery, id)
}

func (r *PostgresRepository) GetByPath(path string) (Product, error) {
	return r.getOne(getProductByPathQuery, path)
}

func (r *PostgresRepository) getOne(query string, arg any) (Product, error) {
	p, err := scanProduct(r.db.QueryRow(query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, err
	}
	return p, nil
}

// Reset deletes all products and inserts the provided list in a single transaction.
func (r *PostgresRepository) Reset(products []Product) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.Exec(`DELETE FROM product`); err != nil {
		return err
	}

	for _, p := range products {
		var id int
		if err := tx.QueryRow(insertProductQuery, p.Name, p.ImageURL, p.Price, p.Path).Scan(&id); err != nil {
			return err
		}
	}

	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(scanner rowScanner) (Product, error) {
	p := Product{}
	var pic sql.NullString

	if err := scanner.Scan(&p.ID, &p.Name, &pic, &p.Price, &p.Path); err != nil {
		return Product{}, err
	}
	if pic.Valid {
		p.ImageURL = &pic.String
	}
	return p, nil
}
