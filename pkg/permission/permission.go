package permission

import (
	"context"
	"fmt"
	"sync"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// Permission names a runtime permission the agent needs before touching a location source.
type Permission string

const (
	// CoarseLocation covers network based positioning (Wi-Fi, cell towers, IP).
	CoarseLocation Permission = "coarse_location"
	// FineLocation covers the GPS receiver.
	FineLocation Permission = "fine_location"
)

// Location lists the permissions location updates require.
var Location = []Permission{CoarseLocation, FineLocation}

// Parse validates a configured permission name.
func Parse(s string) (Permission, error) {
	switch p := Permission(s); p {
	case CoarseLocation, FineLocation:
		return p, nil
	default:
		return "", fmt.Errorf("unknown permission %q", s)
	}
}

// Prompter asks the operator whether a permission may be granted.
type Prompter interface {
	Ask(ctx context.Context, perm Permission) (bool, error)
}

// ManagerInterface defines the permission checks used by the streaming service.
type ManagerInterface interface {
	Granted(perms ...Permission) bool
	Request(ctx context.Context, perms ...Permission) (bool, error)
	Revoke(perm Permission)
	OnRevoke(fn func(Permission))
}

// Manager keeps the in-memory grant state.
type Manager struct {
	grants   cmap.ConcurrentMap[string, bool]
	prompter Prompter

	hooksMu sync.Mutex
	hooks   []func(Permission)
}

// NewManager creates a Manager with the given permissions already granted.
func NewManager(prompter Prompter, granted ...Permission) *Manager {
	m := &Manager{
		grants:   cmap.New[bool](),
		prompter: prompter,
	}
	for _, p := range granted {
		m.grants.Set(string(p), true)
	}
	return m
}

// Granted reports whether every listed permission is granted.
func (m *Manager) Granted(perms ...Permission) bool {
	for _, p := range perms {
		if ok, _ := m.grants.Get(string(p)); !ok {
			return false
		}
	}
	return true
}

// Request prompts for each missing permission and reports whether all ended up granted.
// Every prompt is asked even after a refusal, like a multi-permission dialog.
func (m *Manager) Request(ctx context.Context, perms ...Permission) (bool, error) {
	all := true
	for _, p := range perms {
		if m.Granted(p) {
			continue
		}
		if m.prompter == nil {
			all = false
			continue
		}
		ok, err := m.prompter.Ask(ctx, p)
		if err != nil {
			return false, fmt.Errorf("failed to request %s: %w", p, err)
		}
		if ok {
			m.grants.Set(string(p), true)
		} else {
			all = false
		}
	}
	return all, nil
}

// Revoke withdraws a grant and notifies the revoke hooks.
func (m *Manager) Revoke(perm Permission) {
	if _, existed := m.grants.Pop(string(perm)); !existed {
		return
	}

	m.hooksMu.Lock()
	hooks := append([]func(Permission){}, m.hooks...)
	m.hooksMu.Unlock()

	for _, fn := range hooks {
		fn(perm)
	}
}

// OnRevoke registers fn to be called after a permission is revoked.
func (m *Manager) OnRevoke(fn func(Permission)) {
	m.hooksMu.Lock()
	m.hooks = append(m.hooks, fn)
	m.hooksMu.Unlock()
}
