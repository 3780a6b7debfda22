package database

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/rmitchellscott/ditherbox/internal/dither"
)

// DitherJob records one persisted dither run and where its result lives.
type DitherJob struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SourceName   string    `gorm:"size:255" json:"source_name"`
	SourceFormat string    `gorm:"size:16" json:"source_format"`
	Preset       string    `gorm:"size:100" json:"preset,omitempty"`
	Algorithm    string    `gorm:"size:50;not null;index" json:"algorithm"`

	RequestedParams datatypes.JSONType[dither.Params]   `json:"requested_params"`
	EffectiveParams datatypes.JSONType[dither.Params]   `json:"effective_params"`
	Warnings        datatypes.JSONType[[]dither.Warning] `json:"warnings"`
	Applied         bool                                 `gorm:"not null" json:"applied"`

	OutputFormat string `gorm:"size:8" json:"output_format"`
	SourceWidth  int    `json:"source_width"`
	SourceHeight int    `json:"source_height"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`

	ResultKey  string `gorm:"size:255;not null" json:"-"`
	ByteSize   int64  `json:"byte_size"`
	DurationMs int64  `json:"duration_ms"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// BeforeCreate sets UUID if not already set
func (j *DitherJob) BeforeCreate(tx *gorm.DB) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	return nil
}

// GetAllModels returns every model managed by migrations.
func GetAllModels() []interface{} {
	return []interface{}{
		&DitherJob{},
	}
}
