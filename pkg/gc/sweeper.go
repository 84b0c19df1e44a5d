package gc

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/wxpppp/garage/pkg/block"
	"github.com/wxpppp/garage/pkg/log"
	"github.com/wxpppp/garage/pkg/metrics"
	"github.com/wxpppp/garage/pkg/model"
	"github.com/wxpppp/garage/pkg/store"
	"github.com/wxpppp/garage/pkg/types"
)

// DefaultInterval is the pause between sweep cycles.
const DefaultInterval = 10 * time.Minute

// Sweeper reclaims the leftovers of aborted and shadowed versions: it
// prunes object rows, tombstones the dead version and block-ref rows,
// and recomputes block refcounts from the live ref set to correct drift
// left by replayed hooks or missed incref/decref calls.
type Sweeper struct {
	store    *store.BoltStore
	blocks   *block.LocalStore
	interval time.Duration
	logger   zerolog.Logger
	stopCh   chan struct{}
}

// NewSweeper creates a sweeper. interval ≤ 0 selects DefaultInterval.
func NewSweeper(st *store.BoltStore, blocks *block.LocalStore, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sweeper{
		store:    st,
		blocks:   blocks,
		interval: interval,
		logger:   log.WithComponent("gc"),
		stopCh:   make(chan struct{}),
	}
}

// Start begins the sweep loop
func (s *Sweeper) Start() {
	go s.run()
}

// Stop stops the sweeper
func (s *Sweeper) Stop() {
	close(s.stopCh)
}

func (s *Sweeper) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.interval).Msg("GC sweeper started")

	for {
		select {
		case <-ticker.C:
			if err := s.Sweep(context.Background()); err != nil {
				s.logger.Error().Err(err).Msg("GC sweep cycle failed")
			}
		case <-s.stopCh:
			s.logger.Info().Msg("GC sweeper stopped")
			return
		}
	}
}

// Sweep performs one full cycle: object pruning, version and block-ref
// reaping, then the refcount scrub.
func (s *Sweeper) Sweep(ctx context.Context) error {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.GCDuration)
		metrics.GCCyclesTotal.Inc()
	}()

	dead, err := s.pruneObjects(ctx)
	if err != nil {
		return err
	}
	if err := s.reapVersions(ctx, dead); err != nil {
		return err
	}
	if err := s.reapOrphanRefs(ctx); err != nil {
		return err
	}
	return s.scrubRefcounts(ctx)
}

// pruneObjects rewrites object rows without their dead versions and
// returns the UUIDs of the versions it removed. A version is dead when it
// is aborted, or complete but shadowed by a newer complete version. A
// delete marker left with nothing to hide is dead too.
func (s *Sweeper) pruneObjects(ctx context.Context) ([]types.UUID, error) {
	var dead []types.UUID
	var rewrite []*model.Object

	err := s.store.ForEachObject(ctx, func(obj *model.Object) error {
		lastComplete := -1
		for i := len(obj.Versions) - 1; i >= 0; i-- {
			if obj.Versions[i].IsComplete() {
				lastComplete = i
				break
			}
		}

		var kept []model.ObjectVersion
		var removed []types.UUID
		hasUploading := false
		for i := range obj.Versions {
			v := &obj.Versions[i]
			switch {
			case v.IsAborted():
				removed = append(removed, v.UUID)
			case v.IsComplete() && i < lastComplete:
				removed = append(removed, v.UUID)
			default:
				if v.State == model.StateUploading {
					hasUploading = true
				}
				kept = append(kept, *v)
			}
		}

		// A marker alone hides nothing; drop it and the whole row.
		if !hasUploading && len(kept) == 1 && kept[0].IsComplete() &&
			kept[0].Data != nil && kept[0].Data.Kind == model.KindDeleteMarker {
			removed = append(removed, kept[0].UUID)
			kept = nil
		}

		if len(removed) == 0 {
			return nil
		}
		dead = append(dead, removed...)
		rewrite = append(rewrite, model.NewObject(obj.BucketID, obj.Key, kept...))
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, obj := range rewrite {
		if err := s.store.ReplaceObjectRow(ctx, obj); err != nil {
			return nil, err
		}
		metrics.GCItemsReaped.WithLabelValues("object").Inc()
	}
	return dead, nil
}

// reapVersions tombstones the version rows of dead versions, releases
// their block refs, and removes the rows once the refs are dead.
func (s *Sweeper) reapVersions(ctx context.Context, dead []types.UUID) error {
	for _, uuid := range dead {
		version, err := s.store.GetVersion(ctx, uuid)
		if err != nil {
			return err
		}
		if version == nil {
			// delete markers and inline versions have no version row
			continue
		}

		tombstone := model.NewVersion(uuid, version.BucketID, version.Key)
		tombstone.Deleted = true
		if err := s.store.InsertVersion(ctx, tombstone); err != nil {
			return err
		}

		for i := range version.Blocks {
			entry := &version.Blocks[i]
			ref := &model.BlockRef{Block: entry.Hash, Version: uuid, Deleted: true}
			if err := s.store.InsertBlockRef(ctx, ref); err != nil {
				return err
			}
			if err := s.store.DeleteBlockRefRow(ctx, entry.Hash, uuid); err != nil {
				return err
			}
			metrics.GCItemsReaped.WithLabelValues("block_ref").Inc()
		}

		if err := s.store.DeleteVersionRow(ctx, uuid); err != nil {
			return err
		}
		metrics.GCItemsReaped.WithLabelValues("version").Inc()
	}
	return nil
}

// reapOrphanRefs removes block refs whose version row no longer exists.
// Live orphans are tombstoned first so the decref edge fires.
func (s *Sweeper) reapOrphanRefs(ctx context.Context) error {
	var orphans []model.BlockRef
	err := s.store.ForEachBlockRef(ctx, model.FilterAny, func(ref *model.BlockRef) error {
		version, err := s.store.GetVersion(ctx, ref.Version)
		if err != nil {
			return err
		}
		if version == nil {
			orphans = append(orphans, *ref)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for i := range orphans {
		ref := &orphans[i]
		if ref.IsLive() {
			tombstone := &model.BlockRef{Block: ref.Block, Version: ref.Version, Deleted: true}
			if err := s.store.InsertBlockRef(ctx, tombstone); err != nil {
				return err
			}
		}
		if err := s.store.DeleteBlockRefRow(ctx, ref.Block, ref.Version); err != nil {
			return err
		}
		metrics.GCItemsReaped.WithLabelValues("block_ref").Inc()
	}
	return nil
}

// scrubRefcounts recomputes every block's refcount from the live refs and
// drops blocks nothing references anymore.
func (s *Sweeper) scrubRefcounts(ctx context.Context) error {
	counts := map[types.Hash]int64{}
	err := s.store.ForEachBlockRef(ctx, model.FilterNotDeleted, func(ref *model.BlockRef) error {
		counts[ref.Block]++
		return nil
	})
	if err != nil {
		return err
	}

	if err := s.blocks.ScrubRefcounts(ctx, counts); err != nil {
		return err
	}
	deleted, err := s.blocks.DeleteUnreferenced(ctx)
	if err != nil {
		return err
	}
	if deleted > 0 {
		s.logger.Info().Int("blocks", deleted).Msg("Deleted unreferenced blocks")
		metrics.GCItemsReaped.WithLabelValues("block").Add(float64(deleted))
	}
	return nil
}
