package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wxpppp/garage/pkg/types"
)

func uploadingVersion(uuid types.UUID, ts uint64) ObjectVersion {
	return ObjectVersion{UUID: uuid, Timestamp: ts, State: StateUploading}
}

func completeVersion(uuid types.UUID, ts uint64, size uint64) ObjectVersion {
	return ObjectVersion{
		UUID:      uuid,
		Timestamp: ts,
		State:     StateComplete,
		Data: &ObjectVersionData{
			Kind: KindFirstBlock,
			Meta: &ObjectVersionMeta{Size: size, Etag: "etag"},
		},
	}
}

func abortedVersion(uuid types.UUID, ts uint64) ObjectVersion {
	return ObjectVersion{UUID: uuid, Timestamp: ts, State: StateAborted}
}

func markerVersion(uuid types.UUID, ts uint64) ObjectVersion {
	return ObjectVersion{
		UUID:      uuid,
		Timestamp: ts,
		State:     StateComplete,
		Data:      &ObjectVersionData{Kind: KindDeleteMarker},
	}
}

func TestObjectVersionStateLattice(t *testing.T) {
	uuid := types.GenUUID()

	tests := []struct {
		name     string
		a, b     ObjectVersion
		expected VersionState
	}{
		{
			name:     "uploading loses to aborted",
			a:        uploadingVersion(uuid, 1),
			b:        abortedVersion(uuid, 1),
			expected: StateAborted,
		},
		{
			name:     "uploading loses to complete",
			a:        uploadingVersion(uuid, 1),
			b:        completeVersion(uuid, 1, 10),
			expected: StateComplete,
		},
		{
			name:     "complete is terminal against aborted",
			a:        completeVersion(uuid, 1, 10),
			b:        abortedVersion(uuid, 1),
			expected: StateComplete,
		},
		{
			name:     "uploading merges with uploading",
			a:        uploadingVersion(uuid, 1),
			b:        uploadingVersion(uuid, 1),
			expected: StateUploading,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bucketID := types.GenUUID()

			// both directions converge to the same state
			left := NewObject(bucketID, "k", tt.a)
			left.Merge(NewObject(bucketID, "k", tt.b))
			right := NewObject(bucketID, "k", tt.b)
			right.Merge(NewObject(bucketID, "k", tt.a))

			require.Len(t, left.Versions, 1)
			require.Len(t, right.Versions, 1)
			assert.Equal(t, tt.expected, left.Versions[0].State)
			assert.Equal(t, tt.expected, right.Versions[0].State)
		})
	}
}

func TestObjectMergeUnionsVersions(t *testing.T) {
	bucketID := types.GenUUID()
	v1 := completeVersion(types.GenUUID(), 1, 10)
	v2 := markerVersion(types.GenUUID(), 2)

	a := NewObject(bucketID, "k", v1)
	a.Merge(NewObject(bucketID, "k", v2))

	require.Len(t, a.Versions, 2)
	assert.Equal(t, v1.UUID, a.Versions[0].UUID)
	assert.Equal(t, v2.UUID, a.Versions[1].UUID)

	// the marker is the visible latest
	last := a.LastVisible()
	require.NotNil(t, last)
	assert.Equal(t, v2.UUID, last.UUID)
	assert.Equal(t, KindDeleteMarker, last.Data.Kind)
}

func TestObjectMergeLaws(t *testing.T) {
	bucketID := types.GenUUID()
	uuid := types.GenUUID()

	va := uploadingVersion(uuid, 5)
	vb := completeVersion(uuid, 5, 42)
	vc := markerVersion(types.GenUUID(), 7)

	obj := func(versions ...ObjectVersion) *Object {
		return NewObject(bucketID, "k", versions...)
	}
	merge := func(x, y *Object) *Object {
		out := obj(x.Versions...)
		out.Merge(obj(y.Versions...))
		return out
	}

	a, b, c := obj(va), obj(vb), obj(vc)

	// commutativity
	assert.Equal(t, merge(a, b), merge(b, a))

	// associativity
	assert.Equal(t, merge(merge(a, b), c), merge(a, merge(b, c)))

	// idempotence: re-inserting the same row is a no-op
	ab := merge(a, b)
	assert.Equal(t, ab, merge(ab, ab))
}

func TestObjectCounts(t *testing.T) {
	bucketID := types.GenUUID()

	tests := []struct {
		name            string
		obj             *Object
		expectedObjects int64
		expectedBytes   int64
	}{
		{
			name:            "data version counts",
			obj:             NewObject(bucketID, "k", completeVersion(types.GenUUID(), 1, 100)),
			expectedObjects: 1,
			expectedBytes:   100,
		},
		{
			name:            "uploading counts nothing",
			obj:             NewObject(bucketID, "k", uploadingVersion(types.GenUUID(), 1)),
			expectedObjects: 0,
			expectedBytes:   0,
		},
		{
			name:            "marker alone counts nothing",
			obj:             NewObject(bucketID, "k", markerVersion(types.GenUUID(), 1)),
			expectedObjects: 0,
			expectedBytes:   0,
		},
		{
			name: "two data versions sum their bytes",
			obj: NewObject(bucketID, "k",
				completeVersion(types.GenUUID(), 1, 100),
				completeVersion(types.GenUUID(), 2, 50)),
			expectedObjects: 1,
			expectedBytes:   150,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			counts := tt.obj.Counts()
			assert.Equal(t, tt.expectedObjects, counts[CounterObjects])
			assert.Equal(t, tt.expectedBytes, counts[CounterBytes])
		})
	}
}

func TestNextTimestamp(t *testing.T) {
	bucketID := types.GenUUID()

	// no prior object: now wins
	assert.Equal(t, uint64(1000), NextTimestamp(nil, 1000))

	// prior version in the past: now wins
	old := NewObject(bucketID, "k", completeVersion(types.GenUUID(), 500, 1))
	assert.Equal(t, uint64(1000), NextTimestamp(old, 1000))

	// prior version at or ahead of the clock: strictly increases
	ahead := NewObject(bucketID, "k", completeVersion(types.GenUUID(), 2000, 1))
	assert.Equal(t, uint64(2001), NextTimestamp(ahead, 1000))
}
