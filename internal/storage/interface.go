// Package storage is the artifact object store. Keys are slash separated
// and laid out as {prefix}/{featureId}/{location}/{filename}.
package storage

import (
	"context"
	"path"
	"time"
)

// Metadata describes where an artifact came from
type Metadata struct {
	ContentType string    `json:"contentType,omitempty"`
	Checksum    string    `json:"checksum,omitempty"`
	FeatureID   string    `json:"featureId,omitempty"`
	SceneID     string    `json:"sceneId,omitempty"`
	TaskID      string    `json:"taskId,omitempty"`
	RequestID   string    `json:"requestId,omitempty"`
	WrittenAt   time.Time `json:"writtenAt,omitempty"`
}

// ObjectInfo describes a stored artifact without its content
type ObjectInfo struct {
	Key         string    `json:"key"`
	Size        int64     `json:"size"`
	Checksum    string    `json:"checksum"`
	ContentType string    `json:"contentType,omitempty"`
	ModifiedAt  time.Time `json:"modifiedAt"`
	Metadata    *Metadata `json:"metadata,omitempty"`
}

// Storage is the artifact object store. Put overwrites, so re-processing a
// scene replaces its artifacts in place.
type Storage interface {
	Put(ctx context.Context, key string, content []byte, metadata *Metadata) error
	Get(ctx context.Context, key string) ([]byte, error)
	// Stat returns size, checksum and provenance of an artifact.
	Stat(ctx context.Context, key string) (*ObjectInfo, error)
	Delete(ctx context.Context, key string) error
	// List returns the keys under prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
}

// ArtifactKey builds the object key of a scene artifact:
// {prefix}/{featureID}/{location}/{filename}.
func ArtifactKey(prefix, featureID, location, filename string) string {
	return path.Join(prefix, featureID, location, filename)
}

// MetadataKey builds the key of a scene's metadata document, which lives
// in a metadata/ folder next to the artifacts.
func MetadataKey(prefix, featureID, location, filename string) string {
	return path.Join(prefix, featureID, location, "metadata", filename)
}

// FeaturePrefix is the key prefix of every artifact of one feature.
func FeaturePrefix(prefix, featureID string) string {
	return path.Join(prefix, featureID) + "/"
}

var contentTypes = map[string]string{
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".png":  "image/png",
	".csv":  "text/csv",
	".json": "application/json",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

// ContentTypeFor guesses an artifact's content type from its extension.
func ContentTypeFor(key string) string {
	if ct, ok := contentTypes[path.Ext(key)]; ok {
		return ct
	}
	return "application/octet-stream"
}
