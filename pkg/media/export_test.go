package media

// Waiters reports how many acquirers are blocked on the request for c.
func (p *Pool) Waiters(c Constraints) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if rec := p.find(c); rec != nil {
		return rec.waiters
	}
	return 0
}
