package geocache

import "time"

// StartJanitor prunes expired entries every interval until Stop is called.
// Expiry on read keeps the cache correct without it; the janitor only bounds
// memory held by entries nobody asks for again. Calling it twice is a no-op.
func (c *Cache) StartJanitor(interval time.Duration) {
	if interval <= 0 {
		return
	}
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.mu.Unlock()

	go c.runJanitor(interval)
}

func (c *Cache) runJanitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.PruneExpired()
		case <-c.stopCh:
			return
		}
	}
}

// Stop ends the janitor goroutine, if any.
func (c *Cache) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
}
