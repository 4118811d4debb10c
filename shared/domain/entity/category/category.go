package category

import (
	"errors"
	"strings"
	"time"
)

var ErrEmptyCategoryID = errors.New("category id cannot be empty")

// Category is a listing section of the source site. Rows are immutable once recorded.
type Category struct {
	ID           int64     `db:"id"`
	CategoryID   string    `db:"category_id"`
	CategoryName string    `db:"category_name"`
	URL          string    `db:"url"`
	CreatedAt    time.Time `db:"created_at"`
}

func NewCategory(categoryID, name, url string) (*Category, error) {
	categoryID = strings.TrimSpace(categoryID)
	if categoryID == "" {
		return nil, ErrEmptyCategoryID
	}
	if strings.TrimSpace(name) == "" {
		name = "category_" + categoryID
	}
	return &Category{
		CategoryID:   categoryID,
		CategoryName: strings.TrimSpace(name),
		URL:          url,
		CreatedAt:    time.Now(),
	}, nil
}
