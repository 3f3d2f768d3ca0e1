// Package types - Object storage types
package types

import "time"

// ObjectInfo describes a listed object in the usage report bucket.
type ObjectInfo struct {
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}
