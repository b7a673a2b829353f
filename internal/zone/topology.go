package zone

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/KnightKu/kvdo/internal/vdoerr"
)

// ThreadCountConfig is thread_count_config from spec §5: the zone and
// auxiliary thread counts fixed at startup. Logical, physical, and hash
// counts must be all-zero (small-device fallback) or all-nonzero.
type ThreadCountConfig struct {
	LogicalZones  int
	PhysicalZones int
	HashZones     int
	BIOThreads    int
	BIOAckThreads int
	CPUThreads    int
}

// Validate enforces the all-zero-or-all-nonzero rule across the three zone
// counts and that the auxiliary thread counts are usable.
func (c ThreadCountConfig) Validate() error {
	zeros := 0
	if c.LogicalZones == 0 {
		zeros++
	}
	if c.PhysicalZones == 0 {
		zeros++
	}
	if c.HashZones == 0 {
		zeros++
	}
	if zeros != 0 && zeros != 3 {
		return fmt.Errorf("zone: logical/physical/hash zone counts must be all zero or all nonzero, got %d/%d/%d: %w",
			c.LogicalZones, c.PhysicalZones, c.HashZones, vdoerr.ErrBadConfiguration)
	}
	if c.BIOThreads < 1 {
		return fmt.Errorf("zone: bio thread count must be >= 1, got %d: %w", c.BIOThreads, vdoerr.ErrBadConfiguration)
	}
	if c.CPUThreads < 1 {
		return fmt.Errorf("zone: cpu thread count must be >= 1, got %d: %w", c.CPUThreads, vdoerr.ErrBadConfiguration)
	}
	return nil
}

// IsSmallDevice reports whether this config uses the single-thread
// fallback: logical, physical, and hash zone counts all zero.
func (c ThreadCountConfig) IsSmallDevice() bool {
	return c.LogicalZones == 0 && c.PhysicalZones == 0 && c.HashZones == 0
}

// Topology builds and owns every WorkQueue the static thread model requires
// (spec §5): one admin, one journal, one packer, one dedupe, the zone
// counts' worth of logical/physical/hash queues, the configured bio and cpu
// queues, and an optional bio-ack queue. On a small device (all zone counts
// zero) a single shared queue backs every zone-kind lookup.
type Topology struct {
	config ThreadCountConfig
	small  bool

	admin   *WorkQueue
	journal *WorkQueue
	packer  *WorkQueue
	dedupe  *WorkQueue

	logical  []*WorkQueue
	physical []*WorkQueue
	hash     []*WorkQueue
	bioAck   []*WorkQueue
	bio      []*WorkQueue
	cpu      []*WorkQueue

	shared *WorkQueue
}

// NewTopology validates config and allocates one WorkQueue per thread it
// names. It does not start any Run loop; callers start each queue's loop on
// its own goroutine.
func NewTopology(config ThreadCountConfig) (*Topology, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	t := &Topology{
		config: config,
		small:  config.IsSmallDevice(),
		admin:  NewWorkQueue("admin"),
	}
	if t.small {
		t.shared = NewWorkQueue("shared")
		t.journal, t.packer, t.dedupe = t.shared, t.shared, t.shared
		return t, nil
	}
	t.journal = NewWorkQueue("journal")
	t.packer = NewWorkQueue("packer")
	t.dedupe = NewWorkQueue("dedupe")
	t.logical = namedQueues("logical", config.LogicalZones)
	t.physical = namedQueues("physical", config.PhysicalZones)
	t.hash = namedQueues("hash", config.HashZones)
	t.bio = namedQueues("bio", config.BIOThreads)
	t.cpu = namedQueues("cpu", config.CPUThreads)
	if config.BIOAckThreads > 0 {
		t.bioAck = namedQueues("bio-ack", config.BIOAckThreads)
	}
	return t, nil
}

func namedQueues(prefix string, n int) []*WorkQueue {
	qs := make([]*WorkQueue, n)
	for i := range qs {
		qs[i] = NewWorkQueue(fmt.Sprintf("%s-%d", prefix, i))
	}
	return qs
}

// Admin returns the single admin-thread queue.
func (t *Topology) Admin() *WorkQueue { return t.admin }

// Journal returns the journal-thread queue (the shared queue on a small
// device).
func (t *Topology) Journal() *WorkQueue { return t.journal }

// Packer returns the packer-thread queue (the shared queue on a small
// device).
func (t *Topology) Packer() *WorkQueue { return t.packer }

// Dedupe returns the dedupe-thread queue (the shared queue on a small
// device).
func (t *Topology) Dedupe() *WorkQueue { return t.dedupe }

// Logical returns the logical-zone queue for lbn, wrapping by zone count.
// On a small device every zone kind resolves to the single shared queue.
func (t *Topology) Logical(index int) *WorkQueue { return t.pick(t.logical, index) }

// Physical returns the physical-zone queue for index.
func (t *Topology) Physical(index int) *WorkQueue { return t.pick(t.physical, index) }

// Hash returns the hash-zone queue for index.
func (t *Topology) Hash(index int) *WorkQueue { return t.pick(t.hash, index) }

// BIOSubmit returns one of the configured bio submission queues, chosen by
// rotation index modulo bioRotationInterval semantics applied by the
// caller; this method only wraps by queue count.
func (t *Topology) BIOSubmit(index int) *WorkQueue { return t.pick(t.bio, index) }

// CPU returns one of the configured compression worker queues.
func (t *Topology) CPU(index int) *WorkQueue { return t.pick(t.cpu, index) }

// BIOAck returns one of the configured bio-ack queues, or nil if none were
// configured (acknowledgement then runs inline on the submitting thread).
func (t *Topology) BIOAck(index int) *WorkQueue {
	if len(t.bioAck) == 0 {
		return nil
	}
	return t.pick(t.bioAck, index)
}

func (t *Topology) pick(qs []*WorkQueue, index int) *WorkQueue {
	if t.small || len(qs) == 0 {
		return t.shared
	}
	return qs[((index%len(qs))+len(qs))%len(qs)]
}

// AllQueues returns every queue the topology owns, for starting Run loops
// and for dump-work-queues reporting. On a small device this is just
// {admin, shared}.
func (t *Topology) AllQueues() []*WorkQueue {
	if t.small {
		return []*WorkQueue{t.admin, t.shared}
	}
	all := []*WorkQueue{t.admin, t.journal, t.packer, t.dedupe}
	all = append(all, t.logical...)
	all = append(all, t.physical...)
	all = append(all, t.hash...)
	all = append(all, t.bio...)
	all = append(all, t.cpu...)
	all = append(all, t.bioAck...)
	return all
}

// RunAll starts every queue's Run loop on its own goroutine and blocks
// until ctx is canceled, then closes every queue and waits for its loop to
// return. This is the topology-level equivalent of spec §5's "each thread
// owns one single-consumer work queue": one goroutine per thread, brought
// up and torn down together.
func (t *Topology) RunAll(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, q := range t.AllQueues() {
		q := q
		g.Go(func() error {
			q.Run()
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		for _, q := range t.AllQueues() {
			q.Close()
		}
		return nil
	})
	return g.Wait()
}
