package models

import "time"

// Tour is a scheduled guided outing with a fixed date and seat capacity.
// The booking core reads tours; content editing happens elsewhere.
type Tour struct {
	ID        string    `db:"id" json:"id"`
	Title     string    `db:"title" json:"title"`
	TourDate  time.Time `db:"tour_date" json:"tour_date"`
	Capacity  int       `db:"capacity" json:"capacity"`
	Published bool      `db:"published" json:"published"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// TourOccupancy summarises confirmed seats against capacity.
type TourOccupancy struct {
	TourID         string `json:"tour_id"`
	ConfirmedCount int    `json:"confirmed_count"`
	Capacity       int    `json:"capacity"`
	IsFull         bool   `json:"is_full"`
}

// TourFilter captures listing criteria for the tour catalog read surface.
type TourFilter struct {
	PublishedOnly bool
	From          *time.Time
	Page          int
	PageSize      int
}
