package database

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	RunRunning   string = "RUNNING"
	RunCompleted string = "COMPLETED"
	RunFailed    string = "FAILED"
)

type Run struct {
	Id       uuid.UUID `gorm:"type:uuid;primaryKey"`
	Filename string
	BaseName string `gorm:"not null"`

	Status    string `gorm:"size:20;not null;index"`
	ErrorKind string `gorm:"size:40"`
	Error     string

	// Requested tiling. Either Rows and Cols or MaxTileEdge is set.
	Rows        int
	Cols        int
	MaxTileEdge int

	Width        int
	Height       int
	TileCount    int
	SourceBytes  int64
	ArchiveName  string
	ArchiveBytes int64
	TileNames    datatypes.JSON // ["photo_0_0.png", ...]

	CreationTime   time.Time `gorm:"index"`
	CompletionTime sql.NullTime
}
