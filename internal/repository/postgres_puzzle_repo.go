package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/cubedex/internal/model"
)

// PostgresPuzzleRepo はPostgreSQLを使用したパズルカタログリポジトリ。
type PostgresPuzzleRepo struct {
	db *sql.DB
}

// NewPostgresPuzzleRepo はPostgresPuzzleRepoを生成する。
func NewPostgresPuzzleRepo(db *sql.DB) *PostgresPuzzleRepo {
	return &PostgresPuzzleRepo{db: db}
}

// FindBySlug は指定slugのパズルを取得する。見つからない場合はnilを返す。
func (r *PostgresPuzzleRepo) FindBySlug(ctx context.Context, slug string) (*model.Puzzle, error) {
	puzzle := &model.Puzzle{}
	err := r.db.QueryRowContext(ctx,
		`SELECT slug, series, model, version, created_at, updated_at
		 FROM puzzles WHERE slug = $1`,
		slug,
	).Scan(&puzzle.Slug, &puzzle.Series, &puzzle.Model, &puzzle.Version, &puzzle.CreatedAt, &puzzle.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("パズルの取得に失敗しました: %w", err)
	}

	return puzzle, nil
}

// ListBySlugs は指定slug集合のパズルをまとめて取得する。
// 存在しないslugは結果に含まれない。
func (r *PostgresPuzzleRepo) ListBySlugs(ctx context.Context, slugs []string) ([]*model.Puzzle, error) {
	if len(slugs) == 0 {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT slug, series, model, version, created_at, updated_at
		 FROM puzzles WHERE slug = ANY($1)`,
		pq.Array(slugs),
	)
	if err != nil {
		return nil, fmt.Errorf("パズル一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var puzzles []*model.Puzzle
	for rows.Next() {
		puzzle := &model.Puzzle{}
		if err := rows.Scan(&puzzle.Slug, &puzzle.Series, &puzzle.Model, &puzzle.Version, &puzzle.CreatedAt, &puzzle.UpdatedAt); err != nil {
			return nil, fmt.Errorf("パズル行の読み取りに失敗しました: %w", err)
		}
		puzzles = append(puzzles, puzzle)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("パズル一覧の走査に失敗しました: %w", err)
	}
	return puzzles, nil
}

// compile-time interface check
var _ PuzzleRepository = (*PostgresPuzzleRepo)(nil)

// PostgresVendorLinkRepo はPostgreSQLを使用したベンダーリンクリポジトリ。
type PostgresVendorLinkRepo struct {
	db *sql.DB
}

// NewPostgresVendorLinkRepo はPostgresVendorLinkRepoを生成する。
func NewPostgresVendorLinkRepo(db *sql.DB) *PostgresVendorLinkRepo {
	return &PostgresVendorLinkRepo{db: db}
}

// Create はベンダーリンクを作成する。
// (puzzle_slug, url) の一意制約に衝突した場合は何もしない（正規化済みURLの重複登録を無視）。
func (r *PostgresVendorLinkRepo) Create(ctx context.Context, link *model.VendorLink) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO vendor_links (id, puzzle_slug, vendor, url, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (puzzle_slug, url) DO NOTHING`,
		link.ID, link.PuzzleSlug, link.Vendor, link.URL, link.CreatedBy, link.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("ベンダーリンクの作成に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ VendorLinkRepository = (*PostgresVendorLinkRepo)(nil)
