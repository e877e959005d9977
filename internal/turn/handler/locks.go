package handler

import "sync"

// conversationLocks serializes turns per conversation id. Entries are
// dropped once nobody holds or waits on them.
type conversationLocks struct {
	mu    sync.Mutex
	locks map[string]*conversationLock
}

type conversationLock struct {
	mu   sync.Mutex
	refs int
}

func newConversationLocks() *conversationLocks {
	return &conversationLocks{locks: make(map[string]*conversationLock)}
}

// lock blocks until id is free and returns the release func.
func (c *conversationLocks) lock(id string) func() {
	c.mu.Lock()
	l, ok := c.locks[id]
	if !ok {
		l = &conversationLock{}
		c.locks[id] = l
	}
	l.refs++
	c.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		c.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(c.locks, id)
		}
		c.mu.Unlock()
	}
}

func (c *conversationLocks) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.locks)
}
