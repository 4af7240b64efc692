package domain

import "time"

// Collection groups library videos under a user-defined name.
type Collection struct {
	ID          int64
	Name        string
	Description string
	Position    int
	VideoCount  int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
