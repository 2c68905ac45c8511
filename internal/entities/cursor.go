package entities

import (
	"context"

	"github.com/roach88/polystore/internal/entity"
	"github.com/roach88/polystore/internal/query"
)

// Cursor iterates over query results lazily, re-issuing the query one page
// of BatchSize rows at a time.
//
// By default the offset advances by the number of rows fetched. Callers
// that disable or otherwise remove fetched entities from the result set
// while iterating must set KeepOffset, or rows will be skipped; with
// KeepOffset the caller must make progress or the cursor repeats the same
// page until the overall Limit is reached.
//
// A Cursor holds iteration state and must not be shared between
// goroutines.
type Cursor struct {
	ctx context.Context
	svc *Service
	p   prepared

	offset  int
	yielded int
	page    []entity.Entity
	pos     int
	last    bool
	cur     entity.Entity
	err     error
}

func newCursor(ctx context.Context, svc *Service, p prepared) *Cursor {
	return &Cursor{ctx: ctx, svc: svc, p: p, offset: p.opts.Offset}
}

// Next advances to the next entity. It returns false when the results are
// exhausted, the overall limit is reached or an error occurred.
func (c *Cursor) Next() bool {
	if c.err != nil {
		return false
	}
	limit := c.p.opts.Limit
	if limit != query.NoLimit && c.yielded >= limit {
		c.cur = nil
		return false
	}

	if c.pos >= len(c.page) {
		if c.last {
			c.cur = nil
			return false
		}
		if err := c.fetchPage(); err != nil {
			c.err = err
			c.cur = nil
			return false
		}
		if len(c.page) == 0 {
			c.cur = nil
			return false
		}
	}

	c.cur = c.page[c.pos]
	c.pos++
	c.yielded++
	return true
}

func (c *Cursor) fetchPage() error {
	size := c.p.opts.PageSize()
	if limit := c.p.opts.Limit; limit != query.NoLimit && limit-c.yielded < size {
		size = limit - c.yielded
	}

	p := c.p
	p.opts.Limit = size
	p.opts.Offset = c.offset

	page, err := c.svc.fetch(c.ctx, p)
	if err != nil {
		return err
	}
	c.page, c.pos = page, 0
	c.last = len(page) < size
	if !c.p.opts.KeepOffset {
		c.offset += len(page)
	}
	return nil
}

// Entity returns the current entity.
func (c *Cursor) Entity() entity.Entity { return c.cur }

// Err returns the error that stopped iteration, if any.
func (c *Cursor) Err() error { return c.err }

// Reset rewinds the cursor to the first page. Iteration always restarts
// from scratch; it cannot resume mid-stream.
func (c *Cursor) Reset() {
	*c = *newCursor(c.ctx, c.svc, c.p)
}

// All drains the cursor into a slice.
func (c *Cursor) All() ([]entity.Entity, error) {
	var out []entity.Entity
	for c.Next() {
		out = append(out, c.Entity())
	}
	return out, c.Err()
}
