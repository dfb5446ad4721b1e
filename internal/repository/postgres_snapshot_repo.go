package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/cubedex/internal/model"
)

// PostgresPriceSnapshotRepo はPostgreSQLを使用した価格スナップショットリポジトリ。
// スナップショットは外部パイプラインが書き込む追記専用テーブルであり、
// このリポジトリは読み取り専用メソッドのみを持つ。
type PostgresPriceSnapshotRepo struct {
	db *sql.DB
}

// NewPostgresPriceSnapshotRepo はPostgresPriceSnapshotRepoを生成する。
func NewPostgresPriceSnapshotRepo(db *sql.DB) *PostgresPriceSnapshotRepo {
	return &PostgresPriceSnapshotRepo{db: db}
}

// FindLatestAtOrBelow は指定パズルについて price <= maxPrice を満たす
// 最新のスナップショットを1件返す。該当がない場合はnilを返す。
func (r *PostgresPriceSnapshotRepo) FindLatestAtOrBelow(ctx context.Context, puzzleSlug string, maxPrice float64) (*model.PriceSnapshot, error) {
	snapshot := &model.PriceSnapshot{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, puzzle_slug, vendor, price, captured_at
		 FROM price_snapshots
		 WHERE puzzle_slug = $1 AND price <= $2
		 ORDER BY captured_at DESC
		 LIMIT 1`,
		puzzleSlug, maxPrice,
	).Scan(&snapshot.ID, &snapshot.PuzzleSlug, &snapshot.Vendor, &snapshot.Price, &snapshot.CapturedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("価格スナップショットの取得に失敗しました: %w", err)
	}

	return snapshot, nil
}

// compile-time interface check
var _ PriceSnapshotRepository = (*PostgresPriceSnapshotRepo)(nil)
