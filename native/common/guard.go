package common

import (
	"errors"
	"sync"
)

var ErrModulePaused = errors.New("module paused")

type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// PauseSet is an in-memory PauseView toggled by operators.
type PauseSet struct {
	mu      sync.RWMutex
	modules map[string]bool
}

// NewPauseSet returns a set with the given modules already paused.
func NewPauseSet(modules ...string) *PauseSet {
	p := &PauseSet{modules: make(map[string]bool, len(modules))}
	for _, module := range modules {
		p.modules[module] = true
	}
	return p
}

func (p *PauseSet) Pause(module string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.modules[module] = true
}

func (p *PauseSet) Resume(module string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.modules, module)
}

// IsPaused implements PauseView.
func (p *PauseSet) IsPaused(module string) bool {
	if p == nil {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.modules[module]
}

// Paused lists the paused modules in no particular order.
func (p *PauseSet) Paused() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.modules))
	for module := range p.modules {
		out = append(out, module)
	}
	return out
}
