package ads

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"adboard/internal/apperr"
)

const (
	maxTitleLen  = 255
	defaultLimit = 100
	maxLimit     = 500
)

type Advertisement struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	Price       float64   `json:"price"`
	CreatedAt   time.Time `json:"created_at"`
	AuthorID    int64     `json:"author_id"`
}

// Input is the full set of caller-editable fields, used by create and replace.
type Input struct {
	Title       string  `json:"title"`
	Description *string `json:"description"`
	Price       float64 `json:"price"`
}

// Patch carries only the fields to change. Nil means unchanged.
type Patch struct {
	Title       *string  `json:"title"`
	Description *string  `json:"description"`
	Price       *float64 `json:"price"`
}

func (p Patch) apply(ad *Advertisement) {
	if p.Title != nil {
		ad.Title = *p.Title
	}
	if p.Description != nil {
		ad.Description = p.Description
	}
	if p.Price != nil {
		ad.Price = *p.Price
	}
}

type Filter struct {
	Title    string
	MinPrice *float64
	MaxPrice *float64
	AuthorID int64
	Limit    int
}

func (f Filter) limit() int {
	switch {
	case f.Limit <= 0:
		return defaultLimit
	case f.Limit > maxLimit:
		return maxLimit
	default:
		return f.Limit
	}
}

func validate(ad *Advertisement) error {
	if strings.TrimSpace(ad.Title) == "" || utf8.RuneCountInString(ad.Title) > maxTitleLen {
		return fmt.Errorf("%w: title must be 1..%d characters", apperr.ErrInvalidInput, maxTitleLen)
	}
	if math.IsNaN(ad.Price) || math.IsInf(ad.Price, 0) || ad.Price < 0 {
		return fmt.Errorf("%w: price must be a non-negative number", apperr.ErrInvalidInput)
	}
	return nil
}
