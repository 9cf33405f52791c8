package upstream

import (
	"context"

	"github.com/nao1215/xspider/internal/model"
)

// FollowingIterator pulls followed accounts page by page.
//
// It is finite and cannot be restarted. Pages are fetched lazily, so a
// caller that stops calling Next stops the requests.
//
//	it := client.IterateFollowing(ctx, id, 500)
//	for it.Next() {
//		node := it.Target()
//	}
//	if err := it.Err(); err != nil { ... }
type FollowingIterator struct {
	client *Client
	ctx    context.Context
	nodeID string
	max    int

	cursor  string
	buf     []model.Node
	current model.Node
	yielded int
	pages   int
	done    bool
	err     error
}

// IterateFollowing returns an iterator over the accounts nodeID follows,
// yielding at most maxResults of them. maxResults <= 0 means no limit.
func (c *Client) IterateFollowing(ctx context.Context, nodeID string, maxResults int) *FollowingIterator {
	return &FollowingIterator{
		client: c,
		ctx:    ctx,
		nodeID: nodeID,
		max:    maxResults,
	}
}

// Next advances to the next account. It returns false at the end of the
// list, on error, or when ctx is cancelled.
func (it *FollowingIterator) Next() bool {
	for {
		if it.err != nil {
			return false
		}
		if it.max > 0 && it.yielded >= it.max {
			return false
		}
		if len(it.buf) > 0 {
			it.current = it.buf[0]
			it.buf = it.buf[1:]
			it.yielded++
			return true
		}
		if it.done {
			return false
		}
		if err := it.ctx.Err(); err != nil {
			it.err = err
			return false
		}

		page, err := it.client.FetchFollowingPage(it.ctx, it.nodeID, it.cursor)
		if err != nil {
			it.err = err
			return false
		}
		it.pages++
		it.buf = page.Nodes

		// A repeated cursor would loop forever.
		if !page.HasMore() || page.NextCursor == it.cursor {
			it.done = true
		} else {
			it.cursor = page.NextCursor
		}
	}
}

// Target returns the account at the current position.
func (it *FollowingIterator) Target() model.Node {
	return it.current
}

// Err returns the error that stopped iteration, if any.
func (it *FollowingIterator) Err() error {
	return it.err
}

// Pages returns how many pages have been fetched so far.
func (it *FollowingIterator) Pages() int {
	return it.pages
}
