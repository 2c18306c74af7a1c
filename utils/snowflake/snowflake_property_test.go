package snowflake

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestProperty_IDsStrictlyIncrease(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("ids from one generator strictly increase", prop.ForAll(
		func(node int64, count int) bool {
			g, err := NewGenerator(node)
			if err != nil {
				return false
			}
			var last int64
			for range count {
				id, err := g.NextID()
				if err != nil || id <= last {
					return false
				}
				last = id
			}
			return true
		},
		gen.Int64Range(0, MaxNode),
		gen.IntRange(1, 5000),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestProperty_ComponentsRoundTrip(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("time and node are recoverable from the id", prop.ForAll(
		func(node int64, offsetMS int64) bool {
			g, err := NewGenerator(node)
			if err != nil {
				return false
			}
			at := time.UnixMilli(Epoch + offsetMS)
			g.now = func() time.Time { return at }

			id, err := g.NextID()
			if err != nil {
				return false
			}
			return Time(id).Equal(at) && Node(id) == node && Sequence(id) == 0
		},
		gen.Int64Range(0, MaxNode),
		gen.Int64Range(0, 1<<40),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
