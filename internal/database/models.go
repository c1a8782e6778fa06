package database

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

type Resume struct {
	ID               uuid.UUID
	OriginalFilename string
	Mime             string
	SizeBytes        int64
	StorageProvider  string
	ObjectKey        string
	StorageUrl       string
	UploadStatus     string
	ExtractedText    sql.NullString
	CreatedAt        time.Time
	SessionID        uuid.UUID
}

type Session struct {
	ID        uuid.UUID
	CreatedAt time.Time
	UserEmail string
	Status    string
	JobTitle  string
}
