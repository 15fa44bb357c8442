package location

import (
	"context"
	"sync"
)

// StaticPermission answers every request with the same permission.
type StaticPermission Permission

// RequestLocationPermission implements PermissionChecker.
func (s StaticPermission) RequestLocationPermission(context.Context, string) (Permission, error) {
	return Permission(s), nil
}

// PermissionRegistry holds per-user permissions reported by clients.
type PermissionRegistry struct {
	mu       sync.RWMutex
	grants   map[string]Permission
	fallback Permission
}

// NewPermissionRegistry creates a registry answering fallback for users
// that never reported.
func NewPermissionRegistry(fallback Permission) *PermissionRegistry {
	if fallback == "" {
		fallback = PermissionUndetermined
	}
	return &PermissionRegistry{grants: make(map[string]Permission), fallback: fallback}
}

// Set records the permission reported for userID.
func (r *PermissionRegistry) Set(userID string, perm Permission) {
	r.mu.Lock()
	r.grants[userID] = perm
	r.mu.Unlock()
}

// Get returns the stored permission or the fallback.
func (r *PermissionRegistry) Get(userID string) Permission {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if perm, ok := r.grants[userID]; ok {
		return perm
	}
	return r.fallback
}

// RequestLocationPermission implements PermissionChecker.
func (r *PermissionRegistry) RequestLocationPermission(ctx context.Context, userID string) (Permission, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return r.Get(userID), nil
}
