package service

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

// newUUIDv7AtTime creates a UUIDv7 with a specific timestamp.
// The first 48 bits are Unix milliseconds; the rest is fixed for determinism.
func newUUIDv7AtTime(t time.Time) uuid.UUID {
	var id uuid.UUID

	ms := uint64(t.UnixMilli())
	id[0] = byte(ms >> 40)
	id[1] = byte(ms >> 32)
	id[2] = byte(ms >> 24)
	id[3] = byte(ms >> 16)
	id[4] = byte(ms >> 8)
	id[5] = byte(ms)

	// version 7, variant 10xx
	id[6] = 0x70
	id[8] = 0x80
	id[15] = 0x01

	return id
}

func TestNewInsightIDIsValid(t *testing.T) {
	id := NewInsightID()
	if err := ValidateInsightID(id); err != nil {
		t.Fatalf("ValidateInsightID(%s) = %v, want nil", id, err)
	}
	if NewInsightID() == id {
		t.Error("NewInsightID returned the same id twice")
	}
}

func TestValidateInsightID_UUIDv4Fails(t *testing.T) {
	err := ValidateInsightID(uuid.New().String())
	if !errors.Is(err, ErrNotUUIDv7) {
		t.Errorf("ValidateInsightID(v4) = %v, want ErrNotUUIDv7", err)
	}
}

func TestValidateInsightID_Malformed(t *testing.T) {
	for _, tc := range []string{"not-a-uuid", "12345", "", "019471a0-0000-7000-8000-"} {
		if err := ValidateInsightID(tc); !errors.Is(err, ErrInvalidInsightID) {
			t.Errorf("ValidateInsightID(%q) = %v, want ErrInvalidInsightID", tc, err)
		}
	}
}

func TestValidateInsightID_FutureTimestamp(t *testing.T) {
	future := newUUIDv7AtTime(time.Now().Add(10 * time.Minute))
	if err := ValidateInsightID(future.String()); !errors.Is(err, ErrFutureTimestamp) {
		t.Errorf("ValidateInsightID(future) = %v, want ErrFutureTimestamp", err)
	}

	nearFuture := newUUIDv7AtTime(time.Now().Add(30 * time.Second))
	if err := ValidateInsightID(nearFuture.String()); err != nil {
		t.Errorf("ValidateInsightID(+30s) = %v, want nil", err)
	}
}

func TestInsightIDTimestamp(t *testing.T) {
	want := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	got := InsightIDTimestamp(newUUIDv7AtTime(want).String())
	if !got.Equal(want) {
		t.Errorf("InsightIDTimestamp = %v, want %v", got, want)
	}

	if !InsightIDTimestamp("garbage").IsZero() {
		t.Error("InsightIDTimestamp(garbage) should be zero")
	}
}
