package domain

import "time"

// Resource is an uploaded content bundle exposed through a container.
type Resource struct {
	ID          string    `json:"id" yaml:"id"`
	Filename    string    `json:"filename" yaml:"filename"`
	ContentPath string    `json:"content_path" yaml:"content_path"`
	Fingerprint string    `json:"fingerprint" yaml:"fingerprint"`
	Source      string    `json:"source,omitempty" yaml:"source,omitempty"` // git repository, if imported
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" yaml:"updated_at"`
}
