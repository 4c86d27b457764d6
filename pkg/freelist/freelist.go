// Package freelist provides the library's recycled-buffer pools.
//
// Buffers are organized in four classes (regular, array, block, factory)
// with per-class and global byte limits. Released buffers are held for
// reuse until a limit is exceeded, GarbageCollect is called, or the
// library terminates. Limits for the block class are mirrored onto the
// factory class; factory limits cannot be set independently.
//
// All operations are thread-safe. Safe for concurrent use.
package freelist

import (
	"fmt"
	"sync"
)

// Class identifies a free-list buffer class.
type Class int

const (
	ClassRegular Class = iota
	ClassArray
	ClassBlock
	ClassFactory
	numClasses
)

func (c Class) String() string {
	switch c {
	case ClassRegular:
		return "regular"
	case ClassArray:
		return "array"
	case ClassBlock:
		return "block"
	case ClassFactory:
		return "factory"
	default:
		return "unknown"
	}
}

// Unlimited disables a limit.
const Unlimited = -1

// Limits bounds the memory retained by the free lists, in bytes.
// A value of Unlimited (-1) means no limit of that type. Block limits
// apply to the factory class as well.
type Limits struct {
	RegularGlobal int
	RegularList   int
	ArrayGlobal   int
	ArrayList     int
	BlockGlobal   int
	BlockList     int
}

// DefaultLimits returns the default (unbounded) limits.
func DefaultLimits() Limits {
	return Limits{
		RegularGlobal: Unlimited,
		RegularList:   Unlimited,
		ArrayGlobal:   Unlimited,
		ArrayList:     Unlimited,
		BlockGlobal:   Unlimited,
		BlockList:     Unlimited,
	}
}

// Sizes reports the bytes currently retained per class.
type Sizes struct {
	Regular uint64
	Array   uint64
	Block   uint64
	Factory uint64
}

// classPool holds the released buffers of one class.
type classPool struct {
	held      [][]byte
	heldBytes int
	global    int // byte limit across the class, Unlimited for none
	list      int // byte limit per list; one list per class, so the stricter of the two applies
}

// Pools is a set of free-list buffer pools, one per class.
type Pools struct {
	mu      sync.Mutex
	classes [numClasses]classPool
}

// New creates free-list pools with default (unbounded) limits.
func New() *Pools {
	p := &Pools{}
	for i := range p.classes {
		p.classes[i].global = Unlimited
		p.classes[i].list = Unlimited
	}
	return p
}

// Get returns a buffer of the given size from the class pool, reusing a
// retained buffer when one is large enough.
func (p *Pools) Get(class Class, size int) []byte {
	if class < 0 || class >= numClasses || size < 0 {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	cp := &p.classes[class]
	for i := len(cp.held) - 1; i >= 0; i-- {
		if cap(cp.held[i]) >= size {
			buf := cp.held[i]
			cp.heldBytes -= cap(buf)
			cp.held = append(cp.held[:i], cp.held[i+1:]...)
			return buf[:size]
		}
	}
	return make([]byte, size)
}

// Put returns a buffer to its class pool. Buffers that would push the
// class past its limits are dropped for the garbage collector instead.
func (p *Pools) Put(class Class, buf []byte) {
	if class < 0 || class >= numClasses || cap(buf) == 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	cp := &p.classes[class]
	next := cp.heldBytes + cap(buf)
	if (cp.global != Unlimited && next > cp.global) || (cp.list != Unlimited && next > cp.list) {
		return
	}
	cp.held = append(cp.held, buf[:cap(buf)])
	cp.heldBytes = next
}

// SetLimits applies new retention limits. Limits below Unlimited are
// rejected. Block limits are duplicated onto the factory class.
func (p *Pools) SetLimits(l Limits) error {
	for _, v := range []int{l.RegularGlobal, l.RegularList, l.ArrayGlobal, l.ArrayList, l.BlockGlobal, l.BlockList} {
		if v < Unlimited {
			return fmt.Errorf("invalid free list limit %d", v)
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.classes[ClassRegular].global = l.RegularGlobal
	p.classes[ClassRegular].list = l.RegularList
	p.classes[ClassArray].global = l.ArrayGlobal
	p.classes[ClassArray].list = l.ArrayList
	p.classes[ClassBlock].global = l.BlockGlobal
	p.classes[ClassBlock].list = l.BlockList
	p.classes[ClassFactory].global = l.BlockGlobal
	p.classes[ClassFactory].list = l.BlockList

	for i := range p.classes {
		p.trimLocked(Class(i))
	}
	return nil
}

// Sizes reports the bytes currently retained in each class.
func (p *Pools) Sizes() Sizes {
	p.mu.Lock()
	defer p.mu.Unlock()

	return Sizes{
		Regular: uint64(p.classes[ClassRegular].heldBytes),
		Array:   uint64(p.classes[ClassArray].heldBytes),
		Block:   uint64(p.classes[ClassBlock].heldBytes),
		Factory: uint64(p.classes[ClassFactory].heldBytes),
	}
}

// GarbageCollect releases every retained buffer and returns the number of
// buffers freed.
func (p *Pools) GarbageCollect() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	freed := 0
	for i := range p.classes {
		freed += len(p.classes[i].held)
		p.classes[i].held = nil
		p.classes[i].heldBytes = 0
	}
	return freed
}

// Terminate is the free-list termination hook. It drains every pool and
// reports the number of buffers it released as its pending count, so the
// shutdown driver makes one more pass after a non-empty drain.
func (p *Pools) Terminate() int {
	return p.GarbageCollect()
}

// trimLocked drops retained buffers until the class is within its limits.
// Caller holds p.mu.
func (p *Pools) trimLocked(class Class) {
	cp := &p.classes[class]
	limit := cp.global
	if cp.list != Unlimited && (limit == Unlimited || cp.list < limit) {
		limit = cp.list
	}
	if limit == Unlimited {
		return
	}
	for cp.heldBytes > limit && len(cp.held) > 0 {
		last := len(cp.held) - 1
		cp.heldBytes -= cap(cp.held[last])
		cp.held = cp.held[:last]
	}
}
