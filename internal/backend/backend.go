// Package backend abstracts the container runtime that hosts workspace
// instances. The janitor and provisioner only ever see this interface; the
// runtime is treated as an external, possibly slow, possibly failing service.
package backend

import (
	"context"
	"time"
)

// CreateSpec describes one workspace container to bring up.
type CreateSpec struct {
	ExpiresAt     time.Time
	Subdomain     string
	ContainerName string
	VolumeName    string
	EncryptionKey string
}

// ContainerBackend creates and destroys workspace containers and their
// volumes. Stop, Remove and RemoveVolume treat an already-absent resource as
// success so a teardown interrupted by a crash can be completed by the next
// sweep.
type ContainerBackend interface {
	// Create brings up the container and its volume, publishing the internal
	// service port to a host-reachable port. It returns the published host
	// port.
	Create(ctx context.Context, spec CreateSpec) (int, error)
	Stop(ctx context.Context, containerName string) error
	Remove(ctx context.Context, containerName string) error
	RemoveVolume(ctx context.Context, volumeName string) error
	// Status reports the runtime state of a container by name, or "absent"
	// when no such container exists. Read-only, used by the operator
	// inspection path.
	Status(ctx context.Context, containerName string) (string, error)
}
