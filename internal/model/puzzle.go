package model

import (
	"strings"
	"time"
)

// Puzzle はカタログに登録されたパズル（キューブ）を表す。
// slugが一意な識別子であり、URLパスにもそのまま使用される。
type Puzzle struct {
	Slug      string
	Series    string
	Model     string
	Version   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DisplayLabel は通知文などに使用する人間可読なパズル名を返す。
// series / model / version を空要素を除いて連結する。
// すべて空の場合はslugをそのまま返す。
func (p *Puzzle) DisplayLabel() string {
	parts := make([]string, 0, 3)
	for _, s := range []string{p.Series, p.Model, p.Version} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return p.Slug
	}
	return strings.Join(parts, " ")
}

// VendorLink はパズルに紐付くベンダーの商品ページURLを表す。
// URLは保存前にリンク正規化（linkutil.Normalize）を通過している。
type VendorLink struct {
	ID         string
	PuzzleSlug string
	Vendor     string
	URL        string
	CreatedBy  string
	CreatedAt  time.Time
}

// PriceSnapshot は外部の価格収集パイプラインが生成する価格記録を表す。
// 追記専用であり、このコアからは読み取りのみ行う。
type PriceSnapshot struct {
	ID         string
	PuzzleSlug string
	Vendor     string
	Price      float64
	CapturedAt time.Time
}
