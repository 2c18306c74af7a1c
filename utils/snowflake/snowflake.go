// Package snowflake issues time ordered int64 message ids.
//
// Layout, high to low: 41 bits of milliseconds since Epoch, 10 bits of node
// id, 12 bits of per-millisecond sequence.
package snowflake

import (
	"errors"
	"sync"
	"time"
)

const (
	// Epoch is 2024-01-01T00:00:00Z in milliseconds.
	Epoch int64 = 1704067200000

	nodeBits     = 10
	sequenceBits = 12

	MaxNode      = 1<<nodeBits - 1
	sequenceMask = 1<<sequenceBits - 1
	nodeShift    = sequenceBits
	timeShift    = sequenceBits + nodeBits

	// maxSkew is how far the clock may step back before NextID gives up.
	maxSkew = 5 * time.Millisecond
)

var (
	ErrInvalidNode         = errors.New("snowflake: node id out of range")
	ErrClockMovedBackwards = errors.New("snowflake: clock moved backwards")
)

// Generator is safe for concurrent use.
type Generator struct {
	mu       sync.Mutex
	node     int64
	sequence int64
	lastMS   int64

	now   func() time.Time
	sleep func(time.Duration)
}

func NewGenerator(node int64) (*Generator, error) {
	if node < 0 || node > MaxNode {
		return nil, ErrInvalidNode
	}
	return &Generator{node: node, now: time.Now, sleep: time.Sleep}, nil
}

// NextID returns an id greater than every id this generator returned before.
// A clock step back of up to maxSkew is waited out.
func (g *Generator) NextID() (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := g.millis()
	if ms < g.lastMS {
		behind := time.Duration(g.lastMS-ms) * time.Millisecond
		if behind > maxSkew {
			return 0, ErrClockMovedBackwards
		}
		g.sleep(behind)
		if ms = g.millis(); ms < g.lastMS {
			return 0, ErrClockMovedBackwards
		}
	}

	if ms == g.lastMS {
		g.sequence = (g.sequence + 1) & sequenceMask
		if g.sequence == 0 {
			// 当前毫秒序列号用尽，等待下一毫秒
			for ms <= g.lastMS {
				ms = g.millis()
			}
		}
	} else {
		g.sequence = 0
	}
	g.lastMS = ms

	return (ms-Epoch)<<timeShift | g.node<<nodeShift | g.sequence, nil
}

func (g *Generator) millis() int64 {
	return g.now().UnixMilli()
}

// Time returns the creation time encoded in id.
func Time(id int64) time.Time {
	return time.UnixMilli(id>>timeShift + Epoch)
}

// Node returns the node id encoded in id.
func Node(id int64) int64 {
	return id >> nodeShift & MaxNode
}

// Sequence returns the per-millisecond sequence encoded in id.
func Sequence(id int64) int64 {
	return id & sequenceMask
}
