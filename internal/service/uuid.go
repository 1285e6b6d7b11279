package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInvalidInsightID indicates the string is not a UUID at all
	ErrInvalidInsightID = errors.New("invalid insight id")
	// ErrNotUUIDv7 indicates the UUID is not version 7
	ErrNotUUIDv7 = errors.New("insight id must be a UUIDv7")
	// ErrFutureTimestamp indicates the UUIDv7 timestamp is too far in the future
	ErrFutureTimestamp = errors.New("insight id timestamp is too far in the future")
)

// MaxIDClockSkew is how far ahead of the server clock an id timestamp may be
const MaxIDClockSkew = time.Minute

// NewInsightID mints a time-ordered insight id
func NewInsightID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails when the random source does
		return uuid.NewString()
	}
	return id.String()
}

// NewGenerationID mints an id for one generation run, used for log correlation
func NewGenerationID() string {
	return NewInsightID()
}

// ValidateInsightID checks that id is a UUIDv7 whose embedded timestamp is not
// implausibly far in the future.
func ValidateInsightID(id string) error {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInsightID, err)
	}

	if parsed.Version() != 7 {
		return fmt.Errorf("%w: got version %d", ErrNotUUIDv7, parsed.Version())
	}

	timestamp := InsightIDTimestamp(id)
	if timestamp.After(time.Now().Add(MaxIDClockSkew)) {
		return fmt.Errorf("%w: %v", ErrFutureTimestamp, timestamp.Format(time.RFC3339))
	}

	return nil
}

// InsightIDTimestamp extracts the embedded creation time of a UUIDv7 id.
// Returns zero time if parsing fails.
func InsightIDTimestamp(id string) time.Time {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return time.Time{}
	}
	// UUID.Time() is derived from the embedded Unix milliseconds for v7
	sec, nsec := parsed.Time().UnixTime()
	return time.Unix(sec, nsec)
}
