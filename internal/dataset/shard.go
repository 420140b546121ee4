package dataset

import (
	"fmt"

	"github.com/samber/lo"
)

// ShardingPlan selects the share of records one worker consumes when a
// dataset is split across Count workers.
type ShardingPlan struct {
	Count int
	Index int
}

// SingleWorker sees every record.
var SingleWorker = ShardingPlan{Count: 1, Index: 0}

// Validate reports whether the plan is usable.
func (p ShardingPlan) Validate() error {
	if p.Count < 1 {
		return fmt.Errorf("%w: worker count %d must be at least 1", ErrInvalidParameter, p.Count)
	}
	if p.Index < 0 || p.Index >= p.Count {
		return fmt.Errorf("%w: worker index %d outside [0, %d)", ErrInvalidParameter, p.Index, p.Count)
	}
	return nil
}

// Sharded reports whether records are split across more than one worker.
func (p ShardingPlan) Sharded() bool {
	return p.Count > 1
}

// Select returns the record indices in [0, n) that belong to this worker.
// Record i goes to worker i % Count, so the shards of all workers are
// disjoint and cover every record.
func (p ShardingPlan) Select(n int) []int {
	all := lo.Range(n)
	if !p.Sharded() {
		return all
	}
	return lo.Filter(all, func(i int, _ int) bool {
		return i%p.Count == p.Index
	})
}

func (p ShardingPlan) String() string {
	return fmt.Sprintf("%d/%d", p.Index, p.Count)
}
