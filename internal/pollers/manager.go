package pollers

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/rmitchellscott/ditherbox/internal/logging"
)

// Manager starts and stops a set of named pollers together
type Manager struct {
	mu      sync.RWMutex
	pollers map[string]Poller
	running bool
}

func NewManager() *Manager {
	return &Manager{pollers: make(map[string]Poller)}
}

// Register adds p, replacing any poller with the same name.
func (m *Manager) Register(p Poller) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pollers[p.Name()] = p
	logging.DebugWithComponent(logging.ComponentCleanup, "Registered poller", "poller", p.Name())
}

// Start starts every poller. Pollers that fail to start are reported in
// the returned error; the others keep running.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}
	m.running = true

	var errs []error
	for _, name := range m.names() {
		if err := m.pollers[name].Start(ctx); err != nil {
			errs = append(errs, fmt.Errorf("poller %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Stop stops all running pollers concurrently and waits for them.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return nil
	}

	var (
		wg   sync.WaitGroup
		emu  sync.Mutex
		errs []error
	)
	for name, p := range m.pollers {
		if !p.IsRunning() {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.Stop(); err != nil {
				emu.Lock()
				errs = append(errs, fmt.Errorf("poller %s: %w", name, err))
				emu.Unlock()
			}
		}()
	}
	wg.Wait()

	m.running = false
	return errors.Join(errs...)
}

func (m *Manager) GetPoller(name string) (Poller, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pollers[name]
	return p, ok
}

// ListPollers returns the registered names, sorted.
func (m *Manager) ListPollers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.names()
}

func (m *Manager) names() []string {
	names := make([]string, 0, len(m.pollers))
	for name := range m.pollers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}
