package model

import (
	"sort"

	"github.com/wxpppp/garage/pkg/types"
)

// Counter keys maintained for each bucket.
const (
	CounterObjects = "objects"
	CounterBytes   = "bytes"
)

// VersionState is the lifecycle state of an object version.
type VersionState string

const (
	// StateUploading marks a version whose data transfer is in progress.
	StateUploading VersionState = "uploading"
	// StateComplete marks a version whose data is fully stored.
	StateComplete VersionState = "complete"
	// StateAborted marks a version that was interrupted before completion.
	// Aborted versions are invisible to reads and reaped by the GC.
	StateAborted VersionState = "aborted"
)

// DataKind discriminates the payload representation of a complete version.
type DataKind string

const (
	// KindDeleteMarker is a version that hides all older versions.
	KindDeleteMarker DataKind = "delete-marker"
	// KindInline stores the whole payload inside the version record.
	KindInline DataKind = "inline"
	// KindFirstBlock stores the payload in the block layer; the version
	// record keeps the address of the first block.
	KindFirstBlock DataKind = "first-block"
)

// ObjectHeaders are the client-visible headers captured at PUT time and
// replayed on GET.
type ObjectHeaders struct {
	ContentType string            `json:"content_type,omitempty"`
	Meta        map[string]string `json:"meta,omitempty"`
}

// SealedHeaders is the header blob as persisted: plain JSON for
// unencrypted objects, AES-GCM sealed JSON for encrypted ones.
type SealedHeaders struct {
	Encrypted bool   `json:"encrypted,omitempty"`
	Blob      []byte `json:"blob,omitempty"`
}

// ObjectVersionMeta describes a complete version's payload.
type ObjectVersionMeta struct {
	Headers SealedHeaders `json:"headers"`
	Size    uint64        `json:"size"`
	Etag    string        `json:"etag"`
}

// ObjectVersionData is the payload of a version in StateComplete.
type ObjectVersionData struct {
	Kind DataKind `json:"kind"`

	// Meta is set for KindInline and KindFirstBlock.
	Meta *ObjectVersionMeta `json:"meta,omitempty"`
	// Inline holds the (possibly encrypted) payload for KindInline.
	Inline []byte `json:"inline,omitempty"`
	// FirstBlock is the content address of the first stored block for
	// KindFirstBlock.
	FirstBlock types.Hash `json:"first_block,omitempty"`
}

// ObjectVersion is one entry of an object's version list.
type ObjectVersion struct {
	UUID      types.UUID   `json:"uuid"`
	Timestamp uint64       `json:"timestamp"`
	State     VersionState `json:"state"`

	// Uploading-only fields, meaningless once complete.
	Headers   SealedHeaders `json:"uploading_headers,omitempty"`
	Multipart bool          `json:"multipart,omitempty"`

	// Data is set iff State == StateComplete.
	Data *ObjectVersionData `json:"data,omitempty"`
}

// IsComplete reports whether the version reached its terminal stored state.
func (v *ObjectVersion) IsComplete() bool { return v.State == StateComplete }

// IsAborted reports whether the version was abandoned.
func (v *ObjectVersion) IsAborted() bool { return v.State == StateAborted }

// IsData reports whether the version holds client data (complete and not a
// delete marker).
func (v *ObjectVersion) IsData() bool {
	return v.State == StateComplete && v.Data != nil && v.Data.Kind != KindDeleteMarker
}

// mergeState joins two states of the same version per the state lattice:
// Complete is terminal, Aborted overrides any non-complete state, and
// Uploading loses to both.
func (v *ObjectVersion) mergeState(other *ObjectVersion) {
	switch {
	case v.State == StateComplete:
		// terminal
	case other.State == StateComplete:
		v.State = StateComplete
		v.Data = other.Data
		v.Headers = SealedHeaders{}
		v.Multipart = false
	case v.State == StateAborted || other.State == StateAborted:
		v.State = StateAborted
		v.Data = nil
		v.Headers = SealedHeaders{}
		v.Multipart = false
	}
}

// Object is the CRDT entry of the object table: all known versions of one
// (bucket, key), ordered by (timestamp, uuid) ascending.
type Object struct {
	BucketID types.BucketID  `json:"bucket_id"`
	Key      string          `json:"key"`
	Versions []ObjectVersion `json:"versions"`
}

// NewObject builds an object row with its versions sorted.
func NewObject(bucketID types.BucketID, key string, versions ...ObjectVersion) *Object {
	o := &Object{BucketID: bucketID, Key: key, Versions: versions}
	o.sortVersions()
	return o
}

func (o *Object) sortVersions() {
	sort.Slice(o.Versions, func(i, j int) bool {
		a, b := &o.Versions[i], &o.Versions[j]
		if a.Timestamp != b.Timestamp {
			return a.Timestamp < b.Timestamp
		}
		return a.UUID.Compare(b.UUID) < 0
	})
}

// Merge unions the version lists of two replicas of the same object.
// Versions are identified by UUID; colliding versions merge their states
// through the state lattice. Shadowed and aborted versions are kept here
// and pruned by the GC sweep, never by merge, so that merge stays a pure
// join.
func (o *Object) Merge(other *Object) {
	for i := range other.Versions {
		ov := &other.Versions[i]
		found := false
		for j := range o.Versions {
			if o.Versions[j].UUID == ov.UUID {
				o.Versions[j].mergeState(ov)
				found = true
				break
			}
		}
		if !found {
			o.Versions = append(o.Versions, *ov)
		}
	}
	o.sortVersions()
}

// LastVisible returns the newest version a client observes: the complete
// version with the highest (timestamp, uuid). A delete marker counts as
// visible; callers translate it to "no such key".
func (o *Object) LastVisible() *ObjectVersion {
	for i := len(o.Versions) - 1; i >= 0; i-- {
		if o.Versions[i].IsComplete() {
			return &o.Versions[i]
		}
	}
	return nil
}

// Counts returns the per-bucket counter contributions of this object row:
// one object if any data version exists, and the total stored bytes of all
// complete data versions.
func (o *Object) Counts() map[string]int64 {
	counts := map[string]int64{
		CounterObjects: 0,
		CounterBytes:   0,
	}
	for i := range o.Versions {
		v := &o.Versions[i]
		if v.IsData() {
			counts[CounterObjects] = 1
			if v.Data.Meta != nil {
				counts[CounterBytes] += int64(v.Data.Meta.Size)
			}
		}
	}
	return counts
}

// NextTimestamp returns the timestamp for a new version of this key:
// strictly greater than every known version, and never behind the clock.
func NextTimestamp(existing *Object, now uint64) uint64 {
	ts := now
	if existing != nil {
		for i := range existing.Versions {
			if existing.Versions[i].Timestamp >= ts {
				ts = existing.Versions[i].Timestamp + 1
			}
		}
	}
	return ts
}
