package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/timewindow"
)

type BlockedIntervalRepository interface {
	// FindActiveOverlapping returns active intervals with start < end AND end > start.
	FindActiveOverlapping(ctx context.Context, start, end time.Time) ([]model.BlockedInterval, error)
}

// BlockedIndex answers blackout queries over the administrator's blocked intervals.
type BlockedIndex struct {
	repo BlockedIntervalRepository
}

func NewBlockedIndex(repo BlockedIntervalRepository) *BlockedIndex {
	return &BlockedIndex{repo: repo}
}

func (b *BlockedIndex) Overlaps(ctx context.Context, start, end time.Time) (bool, error) {
	hits, err := b.active(ctx, timewindow.Interval{Start: start, End: end})
	if err != nil {
		return false, err
	}
	return len(hits) > 0, nil
}

// ActiveIntervalsFor lists the active blocks touching the local day containing day.
func (b *BlockedIndex) ActiveIntervalsFor(ctx context.Context, day time.Time, loc *time.Location) ([]model.BlockedInterval, error) {
	return b.active(ctx, timewindow.DayBounds(day, loc))
}

// active re-applies the overlap predicate so a repository returning a wider range
// (or inactive rows) cannot widen what counts as blocked.
func (b *BlockedIndex) active(ctx context.Context, window timewindow.Interval) ([]model.BlockedInterval, error) {
	rows, err := b.repo.FindActiveOverlapping(ctx, window.Start, window.End)
	if err != nil {
		return nil, fmt.Errorf("load blocked intervals: %w", err)
	}
	var out []model.BlockedInterval
	for _, r := range rows {
		if !r.Active {
			continue
		}
		if window.Overlaps(timewindow.Interval{Start: r.Start, End: r.End}) {
			out = append(out, r)
		}
	}
	return out, nil
}
