package model

import (
	"database/sql/driver"
	"encoding/json"
)

// JSONB represents a JSONB database type
type JSONB map[string]interface{}

// Value implements driver.Valuer interface
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements sql.Scanner interface
func (j *JSONB) Scan(src interface{}) error {
	if src == nil {
		*j = nil
		return nil
	}

	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, j)
	case string:
		return json.Unmarshal([]byte(v), j)
	default:
		*j = make(JSONB)
		return nil
	}
}

// Clone returns a shallow copy.
func (j JSONB) Clone() JSONB {
	if j == nil {
		return nil
	}
	out := make(JSONB, len(j))
	for k, v := range j {
		out[k] = v
	}
	return out
}
