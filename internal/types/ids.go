package types

import (
	"time"

	"github.com/google/uuid"
)

// EventID identifies one registry event. IDs are UUIDv7, so they sort in
// emission order across restarts.
type EventID string

func NewEventID() EventID {
	return EventID(uuid.Must(uuid.NewV7()).String())
}

// ParseEventID accepts any UUID string, as clients resuming a watch may send
// IDs minted by another version.
func ParseEventID(s string) (EventID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", err
	}
	return EventID(u.String()), nil
}

// Time is the millisecond timestamp embedded in a UUIDv7 ID, or the zero
// time when id is not a UUID.
func (id EventID) Time() time.Time {
	u, err := uuid.Parse(string(id))
	if err != nil || u.Version() != 7 {
		return time.Time{}
	}
	sec, nsec := u.Time().UnixTime()
	return time.Unix(sec, nsec)
}
