package models

import "time"

// Class is an entry in the institution's class catalog. Promotions may only
// target catalogued classes.
type Class struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Level     int       `db:"level" json:"level"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
