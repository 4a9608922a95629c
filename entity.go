package docket

import "time"

// Entity carries the creation and last-write timestamps shared by
// persisted records.
type Entity struct {
	CreatedAt time.Time `json:"created" bson:"created" msgpack:"created"`
	UpdatedAt time.Time `json:"updated" bson:"updated" msgpack:"updated"`
}

// NewEntity returns an Entity stamped with the current UTC time.
func NewEntity() Entity {
	now := time.Now().UTC()
	return Entity{CreatedAt: now, UpdatedAt: now}
}

// Touch refreshes UpdatedAt.
func (e *Entity) Touch(t time.Time) { e.UpdatedAt = t }
