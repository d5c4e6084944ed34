// Package blob builds the header record that opens every upload blob.
package blob

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harun/tally/internal/observability"
	"github.com/harun/tally/pkg/meta"
	"github.com/harun/tally/pkg/platform"
	"github.com/harun/tally/pkg/record"
	"github.com/rs/zerolog/log"
)

// MetaStore is the metadata the builder reads and advances.
type MetaStore interface {
	Get() (meta.Record, error)
	AdvanceSequence(next int64) error
	CreatedAt() (time.Time, bool, error)
}

// Builder creates blob headers. Each Build consumes one sequence number.
type Builder struct {
	meta  MetaStore
	prefs platform.Preferences
	info  *platform.Info
	newID func() string
}

// NewBuilder creates a Builder. A nil info uses build-info defaults.
func NewBuilder(m MetaStore, prefs platform.Preferences, info *platform.Info) *Builder {
	if info == nil {
		info = &platform.Info{}
	}
	return &Builder{meta: m, prefs: prefs, info: info, newID: uuid.NewString}
}

// Build returns a header for appKey and advances the stored sequence, so
// two calls never return the same sequence number.
func (b *Builder) Build(appKey string) (record.Header, error) {
	var persistedAt int64
	created, existed, err := b.meta.CreatedAt()
	if err != nil {
		return record.Header{}, fmt.Errorf("failed to read store creation time: %w", err)
	}
	if existed {
		persistedAt = created.Unix()
	}

	current, err := b.meta.Get()
	if err != nil {
		return record.Header{}, fmt.Errorf("failed to read sequence: %w", err)
	}
	if err := b.meta.AdvanceSequence(current.Sequence + 1); err != nil {
		return record.Header{}, fmt.Errorf("failed to advance sequence: %w", err)
	}
	observability.SetSequence(current.Sequence + 1)

	deviceID, err := platform.DeviceID(b.prefs)
	if err != nil {
		return record.Header{}, fmt.Errorf("failed to get device id: %w", err)
	}

	header := record.Header{
		DataType:    record.TypeHeader,
		PersistedAt: persistedAt,
		Sequence:    current.Sequence,
		ID:          b.newID(),
		Attributes: record.HeaderAttrs{
			DataType:       record.TypeAttributes,
			AppKey:         appKey,
			DeviceID:       deviceID,
			LibraryVersion: platform.LibraryVersion,
			AppVersion:     b.info.Version(),
			Platform:       platform.PlatformName(),
			Language:       platform.Language(),
			DeviceModel:    platform.DeviceModel(),
			OSVersion:      platform.OSVersion(),
			InstallID:      current.InstallID,
		},
	}

	log.Debug().Int64("seq", header.Sequence).Str("blob_id", header.ID).Msg("Blob header built")
	return header, nil
}
