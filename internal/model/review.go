package model

import "time"

// Review はパズルに対するユーザーレビューを表す。
// Bodyは保存前にサニタイズ済みのHTML。
type Review struct {
	ID           string
	UserID       string
	PuzzleSlug   string
	Rating       int
	Body         string
	HelpfulCount int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
