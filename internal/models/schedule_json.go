package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/noah-isme/campus-timetable-api/internal/catalog"
)

// ScheduleJSON stores schedule slots in a JSONB column.
type ScheduleJSON []catalog.ScheduleSlot

// Value implements driver.Valuer.
func (s ScheduleJSON) Value() (driver.Value, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]catalog.ScheduleSlot(s))
}

// Scan implements sql.Scanner.
func (s *ScheduleJSON) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*s = ScheduleJSON{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("scan schedule: unsupported type %T", src)
	}
	var slots []catalog.ScheduleSlot
	if err := json.Unmarshal(raw, &slots); err != nil {
		return fmt.Errorf("scan schedule: %w", err)
	}
	if slots == nil {
		slots = []catalog.ScheduleSlot{}
	}
	*s = slots
	return nil
}
