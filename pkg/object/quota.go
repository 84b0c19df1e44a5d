package object

import (
	"context"
	"fmt"

	"github.com/wxpppp/garage/pkg/model"
)

// checkQuotas validates that storing a new object of the given size keeps
// the bucket under its quotas. Replacements that do not grow the object
// count or the byte count are always allowed, even when the bucket is
// already over quota, so an over-quota bucket can never lock its owner
// out of shrinking it.
func (c *Core) checkQuotas(ctx context.Context, bucket *model.Bucket, size uint64, prevObject *model.Object) error {
	quotas := bucket.Quotas
	if quotas.MaxObjects == nil && quotas.MaxSize == nil {
		return nil
	}

	counters, err := c.store.GetCounters(ctx, bucket.ID)
	if err != nil {
		return InternalError(fmt.Errorf("failed to read bucket counters: %w", err))
	}
	values := counters.FilteredValues(c.layout())

	var prevCntObj, prevCntSize int64
	if prevObject != nil {
		prevCounts := prevObject.Counts()
		prevCntObj = prevCounts[model.CounterObjects]
		prevCntSize = prevCounts[model.CounterBytes]
	}
	cntObjDiff := 1 - prevCntObj
	cntSizeDiff := int64(size) - prevCntSize

	if mo := quotas.MaxObjects; mo != nil {
		currentObjects := values[model.CounterObjects]
		if cntObjDiff > 0 && currentObjects+cntObjDiff > *mo {
			return Forbidden("Object quota is reached, maximum objects for this bucket: %d", *mo)
		}
	}

	if ms := quotas.MaxSize; ms != nil {
		currentSize := values[model.CounterBytes]
		if cntSizeDiff > 0 && currentSize+cntSizeDiff > *ms {
			return Forbidden(
				"Bucket size quota is reached, maximum total size of objects for this bucket: %d. The bucket is already %d bytes, and this object would add %d bytes.",
				*ms, currentSize, cntSizeDiff)
		}
	}

	return nil
}
