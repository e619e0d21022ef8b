package model

import "github.com/google/uuid"

// assignID gives a new row a random id unless the caller already set one.
// Keeps ids portable across Postgres and SQLite, which has no gen_random_uuid().
func assignID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
