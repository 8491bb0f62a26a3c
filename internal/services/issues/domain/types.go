// Package domain defines the issue-store types the pipeline reads and feeds
package domain

import "time"

// Category is the civic issue vocabulary
type Category string

// Known categories; detection only runs for vandalism and flooding
const (
	CategoryPothole     Category = "pothole"
	CategoryStreetlight Category = "streetlight"
	CategoryGarbage     Category = "garbage"
	CategoryVandalism   Category = "vandalism"
	CategoryFlooding    Category = "flooding"
	CategoryOther       Category = "other"
)

// Valid reports whether c is a known category
func (c Category) Valid() bool {
	switch c {
	case CategoryPothole, CategoryStreetlight, CategoryGarbage,
		CategoryVandalism, CategoryFlooding, CategoryOther:
		return true
	}
	return false
}

// NearbySummary is the read projection duplicate detection compares against.
// The pipeline never mutates it
type NearbySummary struct {
	ID        int64     `json:"id"`
	Category  Category  `json:"category"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	CreatedAt time.Time `json:"created_at"`
	Status    string    `json:"status"`
}

// Report is the accepted-report payload handed to the write path
type Report struct {
	Description string
	Category    Category
	Latitude    *float64
	Longitude   *float64
	ImagePath   string
	Source      string // "web", "api"
	UserEmail   string
}
