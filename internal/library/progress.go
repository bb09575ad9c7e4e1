package library

import "sync"

// Snapshot is the advisory state of the running scan.
type Snapshot struct {
	InProgress bool   `json:"in_progress"`
	Current    int    `json:"current"`
	Total      int    `json:"total"`
	Message    string `json:"message"`
}

// Progress is reset at scan start, advanced while scanning and marked idle
// when the scan ends.
type Progress struct {
	mutex sync.RWMutex
	state Snapshot
}

func (p *Progress) Snapshot() Snapshot {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return p.state
}

func (p *Progress) begin(message string) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.state = Snapshot{InProgress: true, Message: message}
}

func (p *Progress) stage(total int, message string) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.state.Current = 0
	p.state.Total = total
	p.state.Message = message
}

func (p *Progress) advance(message string) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.state.Current++
	if message != "" {
		p.state.Message = message
	}
}

func (p *Progress) finish(message string) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.state.InProgress = false
	p.state.Message = message
}
