package crawler

import (
	"fmt"

	check "gopkg.in/check.v1"

	"github.com/alvmarrod/wiki-weaver/internal/storage"
)

type frontierTestSuite struct{}

func (s *frontierTestSuite) TestFIFOOrder(c *check.C) {
	f := NewFrontier()
	for i := 0; i < 3; i++ {
		c.Assert(f.Push(storage.QueueEntry{URL: fmt.Sprintf("u%d", i), Depth: i}), check.Equals, true)
	}

	for i := 0; i < 3; i++ {
		entry, ok := f.Pop()
		c.Assert(ok, check.Equals, true)
		c.Assert(entry.URL, check.Equals, fmt.Sprintf("u%d", i))
		c.Assert(entry.Depth, check.Equals, i)
	}

	_, ok := f.Pop()
	c.Assert(ok, check.Equals, false)
	c.Assert(f.IsEmpty(), check.Equals, true)
}

func (s *frontierTestSuite) TestURLIsQueuedOnce(c *check.C) {
	f := NewFrontier()
	c.Assert(f.Push(storage.QueueEntry{URL: "a"}), check.Equals, true)
	c.Assert(f.Push(storage.QueueEntry{URL: "a", Depth: 2}), check.Equals, false)

	_, _ = f.Pop()
	// Still rejected after it left the queue
	c.Assert(f.Push(storage.QueueEntry{URL: "a"}), check.Equals, false)
	c.Assert(f.Seen("a"), check.Equals, true)
	c.Assert(f.Seen("b"), check.Equals, false)
}

func (s *frontierTestSuite) TestGrowsAcrossWrapAround(c *check.C) {
	f := NewFrontier()
	next, expected := 0, 0

	// Interleave pushes and pops so the head moves before the buffer grows.
	for round := 0; round < 10; round++ {
		for i := 0; i < 7; i++ {
			c.Assert(f.Push(storage.QueueEntry{URL: fmt.Sprintf("u%d", next)}), check.Equals, true)
			next++
		}
		for i := 0; i < 3; i++ {
			entry, ok := f.Pop()
			c.Assert(ok, check.Equals, true)
			c.Assert(entry.URL, check.Equals, fmt.Sprintf("u%d", expected))
			expected++
		}
	}
	c.Assert(f.Size(), check.Equals, next-expected)

	entries := f.GetAllEntries()
	c.Assert(entries, check.HasLen, next-expected)
	for i, entry := range entries {
		c.Assert(entry.URL, check.Equals, fmt.Sprintf("u%d", expected+i))
	}

	for ; expected < next; expected++ {
		entry, ok := f.Pop()
		c.Assert(ok, check.Equals, true)
		c.Assert(entry.URL, check.Equals, fmt.Sprintf("u%d", expected))
	}
	c.Assert(f.IsEmpty(), check.Equals, true)
}
