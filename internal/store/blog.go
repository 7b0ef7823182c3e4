package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/lulukarama/izmirdisestetigi/internal/model"
)

const blogCols = `id, title, slug, content, status, author, created_at, updated_at`

func scanPost(row pgx.Row) (*model.BlogPost, error) {
	p := &model.BlogPost{}
	err := row.Scan(&p.ID, &p.Title, &p.Slug, &p.Content, &p.Status, &p.Author, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func uniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (s *Store) CreateBlogPost(ctx context.Context, p *model.BlogPost) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO blogs (id, title, slug, content, status, author)
		 VALUES ($1,$2,$3,$4,$5,$6)
		 RETURNING created_at, updated_at`,
		p.ID, p.Title, p.Slug, p.Content, p.Status, p.Author,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if uniqueViolation(err) {
		return ErrSlugTaken
	}
	return err
}

func (s *Store) UpdateBlogPost(ctx context.Context, p *model.BlogPost) error {
	if !validID(p.ID) {
		return ErrNotFound
	}
	err := s.pool.QueryRow(ctx,
		`UPDATE blogs SET title=$1, slug=$2, content=$3, status=$4, author=$5, updated_at=NOW()
		 WHERE id=$6
		 RETURNING created_at, updated_at`,
		p.Title, p.Slug, p.Content, p.Status, p.Author, p.ID,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return ErrNotFound
	case uniqueViolation(err):
		return ErrSlugTaken
	}
	return err
}

func (s *Store) DeleteBlogPost(ctx context.Context, id string) error {
	if !validID(id) {
		return ErrNotFound
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM blogs WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListBlogPosts returns posts newest first, only published ones when
// publishedOnly is set.
func (s *Store) ListBlogPosts(ctx context.Context, publishedOnly bool) ([]model.BlogPost, error) {
	q := `SELECT ` + blogCols + ` FROM blogs`
	if publishedOnly {
		q += ` WHERE status = 'published'`
	}
	q += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.BlogPost{}
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *Store) BlogPost(ctx context.Context, id string) (*model.BlogPost, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	return scanPost(s.pool.QueryRow(ctx, `SELECT `+blogCols+` FROM blogs WHERE id=$1`, id))
}

func (s *Store) BlogPostBySlug(ctx context.Context, slug string) (*model.BlogPost, error) {
	return scanPost(s.pool.QueryRow(ctx, `SELECT `+blogCols+` FROM blogs WHERE slug=$1`, slug))
}
