package model

import (
	"github.com/wxpppp/garage/pkg/types"
)

// BucketQuotas caps the contents of a bucket. Nil means unlimited.
type BucketQuotas struct {
	MaxObjects *int64 `json:"max_objects,omitempty" yaml:"max_objects"`
	MaxSize    *int64 `json:"max_size,omitempty" yaml:"max_size"`
}

// Bucket is the configuration snapshot the core reads for each request.
// Bucket configuration storage itself lives outside the core.
type Bucket struct {
	ID     types.BucketID `json:"id"`
	Name   string         `json:"name"`
	Quotas BucketQuotas   `json:"quotas"`
}
