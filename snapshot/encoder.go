package snapshot

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goGuard/permission"
	"github.com/fxamacker/cbor/v2"
)

const snapshotFormatVersionCurrent = 1

var (
	// ErrSchema is returned when a record carries an unknown schema version.
	ErrSchema = errors.New("unsupported snapshot schema version")
	// ErrCorrupt is returned when a record cannot be decoded.
	ErrCorrupt = errors.New("snapshot record corrupt")
)

type record struct {
	Version        uint8  `cbor:"1,keyasint"`
	UserID         string `cbor:"2,keyasint"`
	OrganizationID string `cbor:"3,keyasint"`
	RoleID         string `cbor:"4,keyasint,omitempty"`
	RoleName       string `cbor:"5,keyasint,omitempty"`
	Mask           []byte `cbor:"6,keyasint,omitempty"`
	CapturedAt     int64  `cbor:"7,keyasint"`
	TTL            int64  `cbor:"8,keyasint"`
	MaxAge         int64  `cbor:"9,keyasint"`
}

var encMode = mustEncMode()

func mustEncMode() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}

// Encode serializes s for the durable tier.
func Encode(s *Snapshot) ([]byte, error) {
	if s == nil {
		return nil, errors.New("nil snapshot")
	}
	if !s.Key().Valid() {
		return nil, errors.New("snapshot key incomplete")
	}

	rec := record{
		Version:        snapshotFormatVersionCurrent,
		UserID:         s.UserID,
		OrganizationID: s.OrganizationID,
		RoleID:         s.RoleID,
		RoleName:       s.RoleName,
		CapturedAt:     s.CapturedAt.UnixNano(),
		TTL:            int64(s.TTL),
		MaxAge:         int64(s.MaxAge),
	}

	if s.Permissions != nil {
		mask, err := permission.EncodeMask(s.Permissions)
		if err != nil {
			return nil, err
		}
		rec.Mask = mask
	}

	return encMode.Marshal(rec)
}

// Decode is the inverse of [Encode]. A record without a mask decodes to a
// snapshot with nil Permissions.
func Decode(data []byte) (*Snapshot, error) {
	if len(data) == 0 {
		return nil, ErrCorrupt
	}

	var rec record
	if err := cbor.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if rec.Version != snapshotFormatVersionCurrent {
		return nil, fmt.Errorf("%w: %d", ErrSchema, rec.Version)
	}
	if rec.UserID == "" || rec.OrganizationID == "" {
		return nil, fmt.Errorf("%w: missing key", ErrCorrupt)
	}

	s := &Snapshot{
		UserID:         rec.UserID,
		OrganizationID: rec.OrganizationID,
		RoleID:         rec.RoleID,
		RoleName:       rec.RoleName,
		CapturedAt:     time.Unix(0, rec.CapturedAt),
		TTL:            time.Duration(rec.TTL),
		MaxAge:         time.Duration(rec.MaxAge),
	}

	if len(rec.Mask) > 0 {
		mask, err := permission.DecodeMask(rec.Mask)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		s.Permissions = mask
	}

	return s, nil
}
