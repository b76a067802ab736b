package model

import "time"

// UploadResponse represents a stored source audio file
type UploadResponse struct {
	FileID    string    `json:"fileId"`
	Filename  string    `json:"filename"`
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}
