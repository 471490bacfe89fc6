package backend

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"

	"github.com/vulkanCommand/xcommand-n8n-rental/core/config"
)

const mountPath = "/home/node/.n8n"

// Docker runs workspace containers on the local Docker daemon, the same way
// a single-host deployment fronts them with traefik: each container carries
// routing labels for its subdomain and additionally publishes the internal
// port to a host port so direct http://host:port access keeps working.
type Docker struct {
	cli        *client.Client
	cfg        config.DockerConfig
	baseDomain string
}

func NewDocker(cfg config.DockerConfig, baseDomain string) (*Docker, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	return &Docker{cli: cli, cfg: cfg, baseDomain: baseDomain}, nil
}

func (d *Docker) Create(ctx context.Context, spec CreateSpec) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.CallTimeout)
	defer cancel()

	if err := d.ensureVolume(ctx, spec.VolumeName); err != nil {
		return 0, err
	}

	hostPort, err := freePort()
	if err != nil {
		return 0, fmt.Errorf("finding free host port: %w", err)
	}

	internalPort := nat.Port(fmt.Sprintf("%d/tcp", d.cfg.InternalPort))

	containerCfg := &container.Config{
		Image: d.cfg.Image,
		Env: []string{
			"N8N_HOST=localhost",
			fmt.Sprintf("N8N_PORT=%d", d.cfg.InternalPort),
			"N8N_PROTOCOL=http",
			"N8N_ENCRYPTION_KEY=" + spec.EncryptionKey,
			"N8N_DIAGNOSTICS_ENABLED=false",
			"N8N_VERSION_NOTIFICATIONS_ENABLED=false",
			"N8N_SECURE_COOKIE=false",
			// Skip the user management wizard; basic auth guards the instance.
			"N8N_USER_MANAGEMENT_DISABLED=true",
			"N8N_BASIC_AUTH_ACTIVE=true",
			"N8N_BASIC_AUTH_USER=admin",
			"N8N_BASIC_AUTH_PASSWORD=" + basicAuthPassword(spec.EncryptionKey),
		},
		Labels: map[string]string{
			"xcommand.workspace":  "true",
			"xcommand.subdomain":  spec.Subdomain,
			"xcommand.expires_at": spec.ExpiresAt.UTC().Format(time.RFC3339),
			"traefik.enable":      "true",
			fmt.Sprintf("traefik.http.routers.%s.rule", spec.Subdomain): fmt.Sprintf("Host(`%s.%s`)", spec.Subdomain, d.baseDomain),
			fmt.Sprintf("traefik.http.services.%s.loadbalancer.server.port", spec.Subdomain): strconv.Itoa(d.cfg.InternalPort),
			"traefik.docker.network": d.cfg.Network,
		},
		ExposedPorts: nat.PortSet{internalPort: struct{}{}},
	}

	hostCfg := &container.HostConfig{
		Binds: []string{spec.VolumeName + ":" + mountPath},
		PortBindings: nat.PortMap{
			internalPort: []nat.PortBinding{{HostPort: strconv.Itoa(hostPort)}},
		},
	}

	networkCfg := &network.NetworkingConfig{
		EndpointsConfig: map[string]*network.EndpointSettings{
			d.cfg.Network: {},
		},
	}

	created, err := d.cli.ContainerCreate(ctx, containerCfg, hostCfg, networkCfg, nil, spec.ContainerName)
	if err != nil {
		if !client.IsErrNotFound(err) {
			return 0, fmt.Errorf("creating container %s: %w", spec.ContainerName, err)
		}
		// Image missing on this host: pull once and retry.
		if err := d.pullImage(ctx); err != nil {
			return 0, err
		}
		created, err = d.cli.ContainerCreate(ctx, containerCfg, hostCfg, networkCfg, nil, spec.ContainerName)
		if err != nil {
			return 0, fmt.Errorf("creating container %s: %w", spec.ContainerName, err)
		}
	}

	if err := d.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return 0, fmt.Errorf("starting container %s: %w", spec.ContainerName, err)
	}

	return hostPort, nil
}

func (d *Docker) Stop(ctx context.Context, containerName string) error {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.CallTimeout)
	defer cancel()

	stopTimeout := 30
	err := d.cli.ContainerStop(ctx, containerName, container.StopOptions{Timeout: &stopTimeout})
	if err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("stopping container %s: %w", containerName, err)
	}
	return nil
}

func (d *Docker) Remove(ctx context.Context, containerName string) error {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.CallTimeout)
	defer cancel()

	err := d.cli.ContainerRemove(ctx, containerName, container.RemoveOptions{Force: true})
	if err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("removing container %s: %w", containerName, err)
	}
	return nil
}

func (d *Docker) RemoveVolume(ctx context.Context, volumeName string) error {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.CallTimeout)
	defer cancel()

	err := d.cli.VolumeRemove(ctx, volumeName, true)
	if err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("removing volume %s: %w", volumeName, err)
	}
	return nil
}

func (d *Docker) Status(ctx context.Context, containerName string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.CallTimeout)
	defer cancel()

	info, err := d.cli.ContainerInspect(ctx, containerName)
	if err != nil {
		if client.IsErrNotFound(err) {
			return "absent", nil
		}
		return "", fmt.Errorf("inspecting container %s: %w", containerName, err)
	}
	if info.State == nil {
		return "unknown", nil
	}
	return info.State.Status, nil
}

func (d *Docker) ensureVolume(ctx context.Context, name string) error {
	_, err := d.cli.VolumeInspect(ctx, name)
	if err == nil {
		return nil
	}
	if !client.IsErrNotFound(err) {
		return fmt.Errorf("inspecting volume %s: %w", name, err)
	}
	if _, err := d.cli.VolumeCreate(ctx, volume.CreateOptions{Name: name}); err != nil {
		return fmt.Errorf("creating volume %s: %w", name, err)
	}
	return nil
}

func (d *Docker) pullImage(ctx context.Context) error {
	slog.InfoContext(ctx, "pulling workspace image", "image", d.cfg.Image)
	rc, err := d.cli.ImagePull(ctx, d.cfg.Image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pulling image %s: %w", d.cfg.Image, err)
	}
	defer rc.Close()
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return fmt.Errorf("reading image pull stream: %w", err)
	}
	return nil
}

// freePort asks the OS for an unused TCP port on the host.
func freePort() (int, error) {
	l, err := net.Listen("tcp", ":0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

func basicAuthPassword(encryptionKey string) string {
	if len(encryptionKey) > 16 {
		return encryptionKey[:16]
	}
	return encryptionKey
}
