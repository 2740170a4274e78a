package utils

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Block is one contiguous slice [Offset, Offset+Length) of a partitioned extent
type Block struct {
	Offset, Length int
}

type PartitionMap struct {
	MaxIndex       int // MaxIndex is partitioned into ParallelDegree partitions
	ParallelDegree int
	Partitions     [][2]int // Beginning and end index of partitions
}

func NewPartitionMap(ParallelDegree, maxIndex int) (pm *PartitionMap) {
	if ParallelDegree < 1 {
		panic(fmt.Errorf("parallel degree must be positive, have %d", ParallelDegree))
	}
	pm = &PartitionMap{
		MaxIndex:       maxIndex,
		ParallelDegree: ParallelDegree,
		Partitions:     make([][2]int, ParallelDegree),
	}
	for n := 0; n < ParallelDegree; n++ {
		pm.Partitions[n] = pm.Split1D(n)
	}
	return
}

func (pm *PartitionMap) GetBucketRange(bucketNum int) (kMin, kMax int) {
	kMin, kMax = pm.Partitions[bucketNum][0], pm.Partitions[bucketNum][1]
	return
}

func (pm *PartitionMap) GetBucketDimension(bn int) (kMax int) {
	if bn == -1 {
		kMax = pm.MaxIndex
		return
	}
	var (
		k1, k2 = pm.GetBucketRange(bn)
	)
	kMax = k2 - k1
	return
}

// Blocks returns the partition as an ordered list of {offset, length} pairs
func (pm *PartitionMap) Blocks() (blocks []Block) {
	blocks = make([]Block, pm.ParallelDegree)
	for np := range blocks {
		blocks[np] = Block{
			Offset: pm.Partitions[np][0],
			Length: pm.GetBucketDimension(np),
		}
	}
	return
}

func (pm *PartitionMap) Split1D(threadNum int) (bucket [2]int) {
	// This routine splits one dimension into c.ParallelDegree pieces, with a maximum imbalance of one item
	var (
		Npart            = pm.MaxIndex / (pm.ParallelDegree)
		startAdd, endAdd int
		remainder        int
	)
	remainder = pm.MaxIndex % pm.ParallelDegree
	if remainder != 0 { // spread the remainder over the first chunks evenly
		if threadNum+1 > remainder {
			startAdd = remainder
			endAdd = 0
		} else {
			startAdd = threadNum
			endAdd = 1
		}
	}
	bucket[0] = threadNum*Npart + startAdd
	bucket[1] = bucket[0] + Npart + endAdd
	return
}

var ErrBarrierBroken = errors.New("barrier broken by a failed worker")

// Barrier is a reusable rendezvous point for a fixed number of goroutines.
// Once broken, every current and future Await returns ErrBarrierBroken.
type Barrier struct {
	mu      sync.Mutex
	cond    *sync.Cond
	parties int
	waiting int
	phase   uint64
	broken  bool
}

func NewBarrier(parties int) (b *Barrier) {
	b = &Barrier{parties: parties}
	b.cond = sync.NewCond(&b.mu)
	return
}

// Await blocks until all parties have arrived for the current phase
func (b *Barrier) Await() (err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.broken {
		return ErrBarrierBroken
	}
	phase := b.phase
	b.waiting++
	if b.waiting == b.parties {
		b.waiting = 0
		b.phase++
		b.cond.Broadcast()
		return
	}
	for phase == b.phase && !b.broken {
		b.cond.Wait()
	}
	if phase == b.phase {
		err = ErrBarrierBroken
	}
	return
}

// Break releases every waiter with ErrBarrierBroken
func (b *Barrier) Break() {
	b.mu.Lock()
	b.broken = true
	b.cond.Broadcast()
	b.mu.Unlock()
}

// RunWorkers hosts a parallel region: one goroutine per thread number in [0, NP), all sharing bar.
// A worker that panics or returns an error breaks the barrier so the others unwind instead of
// deadlocking. The first error that is not a consequence of the broken barrier is returned.
func RunWorkers(NP int, bar *Barrier, work func(myThread int) error) (err error) {
	var (
		g    errgroup.Group
		errs = make([]error, NP)
	)
	for np := 0; np < NP; np++ {
		np := np
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("worker %d: %v", np, r)
				}
				if err != nil {
					errs[np] = err
					bar.Break()
				}
			}()
			return work(np)
		})
	}
	if err = g.Wait(); err == nil {
		return
	}
	for _, e := range errs {
		if e != nil && !errors.Is(e, ErrBarrierBroken) {
			return e
		}
	}
	return
}
