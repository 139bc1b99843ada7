package versions

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Run struct {
	Id       uuid.UUID `gorm:"type:uuid;primaryKey"`
	Filename string
	BaseName string `gorm:"not null"`

	Status    string `gorm:"size:20;not null;index"`
	ErrorKind string `gorm:"size:40"`
	Error     string

	Rows        int
	Cols        int
	MaxTileEdge int

	Width        int
	Height       int
	TileCount    int
	SourceBytes  int64
	ArchiveName  string
	ArchiveBytes int64
	TileNames    datatypes.JSON

	CreationTime   time.Time `gorm:"index"`
	CompletionTime sql.NullTime
}

func Migration0(db *gorm.DB) error {
	if err := db.AutoMigrate(&Run{}); err != nil {
		return fmt.Errorf("error creating runs table: %w", err)
	}
	return nil
}
