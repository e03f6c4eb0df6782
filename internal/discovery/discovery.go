package discovery

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"baqup/internal/config"
	"baqup/internal/logger"
	"baqup/internal/model"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"go.uber.org/zap"
)

// ErrDockerUnavailable marks connectivity failures: the daemon could not
// be reached or enumerated. Distinct from per-container parse problems,
// which are logged and skipped.
var ErrDockerUnavailable = errors.New("docker daemon unavailable")

// ContainerAPI is the slice of the Docker client the discovery layer
// depends on. *client.Client satisfies it.
type ContainerAPI interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]types.Container, error)
	ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error)
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	Ping(ctx context.Context) (types.Ping, error)
}

// Discovery finds containers carrying backup labels and compiles their
// configurations. It holds no state between passes.
type Discovery struct {
	cli                   ContainerAPI
	defaultSchedules      map[string]model.ScheduleConfig
	defaultTargetSchedule string
	defaultTargetCompress bool
}

// New creates a Discovery around an existing client. A nil
// defaultSchedules falls back to the built-in schedule set.
func New(cli ContainerAPI, defaultSchedules map[string]model.ScheduleConfig, defaultTargetSchedule string, defaultTargetCompress bool) *Discovery {
	if defaultSchedules == nil {
		defaultSchedules = model.BuiltinSchedules()
	}
	return &Discovery{
		cli:                   cli,
		defaultSchedules:      defaultSchedules,
		defaultTargetSchedule: defaultTargetSchedule,
		defaultTargetCompress: defaultTargetCompress,
	}
}

// NewFromConfig builds the Docker client and seeds resolver defaults from
// the controller configuration.
func NewFromConfig(cfg *config.Config) (*Discovery, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if cfg.Docker.Host != "" {
		opts = append(opts, client.WithHost(cfg.Docker.Host))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: create client: %v", ErrDockerUnavailable, err)
	}
	logger.Log.Info("Docker discovery initialized", zap.String("host", cfg.Docker.Host))
	return New(cli, cfg.DefaultSchedules(), cfg.Defaults.Target.Schedule, cfg.Defaults.Target.Compress), nil
}

// FindEnabledContainers compiles the backup configuration of every
// container with a truthy backup.enabled label. Containers whose labels
// cannot be read are logged and skipped; the pass only fails when the
// daemon itself cannot be queried.
func (d *Discovery) FindEnabledContainers(ctx context.Context) ([]model.ContainerBackupConfig, error) {
	f := filters.NewArgs(filters.Arg("label", model.LabelEnabled+"=true"))
	containers, err := d.cli.ContainerList(ctx, container.ListOptions{All: true, Filters: f})
	if err != nil {
		return nil, fmt.Errorf("%w: list containers: %v", ErrDockerUnavailable, err)
	}

	configs := make([]model.ContainerBackupConfig, 0, len(containers))
	for _, ctr := range containers {
		cfg, err := d.parseContainer(ctx, ctr.ID)
		if err != nil {
			name := ""
			if len(ctr.Names) > 0 {
				name = strings.TrimPrefix(ctr.Names[0], "/")
			}
			logger.Log.Warn("Failed to parse container labels, skipping",
				zap.String("containerID", shortID(ctr.ID)),
				zap.String("containerName", name),
				zap.Error(err),
			)
			continue
		}
		// The daemon filter matches the literal "true"; re-check the
		// parsed flag in case the filter behaved loosely.
		if !cfg.Enabled {
			continue
		}
		configs = append(configs, cfg)
		logger.Log.Info("Discovered container",
			zap.String("containerID", shortID(cfg.ContainerID)),
			zap.String("containerName", cfg.ContainerName),
			zap.Int("targets", len(cfg.Targets)),
			zap.Int("schedules", len(cfg.Schedules)),
		)
	}
	return configs, nil
}

// Refresh is an alias for FindEnabledContainers, for readability in the
// reconcile loop.
func (d *Discovery) Refresh(ctx context.Context) ([]model.ContainerBackupConfig, error) {
	return d.FindEnabledContainers(ctx)
}

// GetContainerConfig returns the compiled configuration for one container,
// or nil when the container does not exist or has backups disabled.
func (d *Discovery) GetContainerConfig(ctx context.Context, containerID string) (*model.ContainerBackupConfig, error) {
	cfg, err := d.parseContainer(ctx, containerID)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: inspect %s: %v", ErrDockerUnavailable, containerID, err)
	}
	if !cfg.Enabled {
		return nil, nil
	}
	return &cfg, nil
}

func (d *Discovery) parseContainer(ctx context.Context, containerID string) (model.ContainerBackupConfig, error) {
	info, err := d.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		return model.ContainerBackupConfig{}, err
	}

	var labels map[string]string
	if info.Config != nil {
		labels = info.Config.Labels
	}

	return model.ConfigFromLabels(
		info.ID,
		info.Name,
		extractBackupLabels(labels),
		d.defaultSchedules,
		d.defaultTargetSchedule,
		d.defaultTargetCompress,
	), nil
}

// StopContainer stops a container ahead of a backup run.
func (d *Discovery) StopContainer(ctx context.Context, containerID string) error {
	return d.cli.ContainerStop(ctx, containerID, container.StopOptions{})
}

// StartContainer restarts a container after a backup run.
func (d *Discovery) StartContainer(ctx context.Context, containerID string) error {
	return d.cli.ContainerStart(ctx, containerID, container.StartOptions{})
}

// Ping checks daemon reachability, for readiness probes.
func (d *Discovery) Ping(ctx context.Context) error {
	if _, err := d.cli.Ping(ctx); err != nil {
		return fmt.Errorf("%w: ping: %v", ErrDockerUnavailable, err)
	}
	return nil
}

func extractBackupLabels(labels map[string]string) map[string]string {
	backup := make(map[string]string)
	for key, value := range labels {
		if strings.HasPrefix(key, model.LabelPrefix) {
			backup[key] = value
		}
	}
	return backup
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
