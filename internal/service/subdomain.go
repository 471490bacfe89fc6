package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/vulkanCommand/xcommand-n8n-rental/internal/store"
)

// ErrSubdomainExhausted means the allocator ran out of collision retries.
// With 24 bits of entropy this indicates misconfiguration or a corrupt
// workspaces table, not bad luck, so it is surfaced as fatal.
var ErrSubdomainExhausted = errors.New("subdomain allocation retries exhausted")

const (
	subdomainPrefix   = "u-"
	subdomainRandLen  = 3 // bytes of entropy, hex-encoded to 6 chars
	allocateMaxProbes = 8
)

// SubdomainAllocator produces short, unguessable workspace handles like
// "u-3d83d4", unique across all workspaces ever created.
type SubdomainAllocator struct {
	workspaces store.WorkspaceStore
}

func NewSubdomainAllocator(workspaces store.WorkspaceStore) *SubdomainAllocator {
	return &SubdomainAllocator{workspaces: workspaces}
}

func (a *SubdomainAllocator) Allocate(ctx context.Context) (string, error) {
	for i := 0; i < allocateMaxProbes; i++ {
		candidate, err := randomSubdomain()
		if err != nil {
			return "", fmt.Errorf("generating subdomain candidate: %w", err)
		}
		exists, err := a.workspaces.SubdomainExists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("checking subdomain availability: %w", err)
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", ErrSubdomainExhausted
}

func randomSubdomain() (string, error) {
	b := make([]byte, subdomainRandLen)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return subdomainPrefix + hex.EncodeToString(b), nil
}

// ContainerNameFor derives the backend container handle for a subdomain.
func ContainerNameFor(subdomain string) string {
	return "n8n_" + subdomain
}

// VolumeNameFor derives the backend volume handle for a subdomain.
func VolumeNameFor(subdomain string) string {
	return "n8n_" + subdomain + "_data"
}

// FQDNFor derives the public routed hostname for a subdomain.
func FQDNFor(subdomain, baseDomain string) string {
	return subdomain + "." + baseDomain
}
