// Package workload checks that a container image honors the workload
// contract before it is deployed: it listens on its container port and
// answers HTTP 200 on "/".
package workload

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/picklr-io/webstack/internal/logging"
)

// dockerAPI is the subset of the Docker client used by the smoke test.
type dockerAPI interface {
	ImagePull(ctx context.Context, ref string, options image.PullOptions) (io.ReadCloser, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *v1.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error)
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
}

// Credentials authenticate the image pull.
type Credentials struct {
	Username      string
	Password      string
	ServerAddress string
}

type SmokeTest struct {
	Image         string
	ContainerPort int
	Credentials   *Credentials

	// Path is probed until it answers 200. Defaults to "/".
	Path string
	// Timeout bounds the whole probe. Defaults to one minute.
	Timeout time.Duration

	docker dockerAPI
	http   *http.Client
}

// Result describes a passed smoke test.
type Result struct {
	ContainerID string
	URL         string
	Attempts    int
	Elapsed     time.Duration
}

// NewSmokeTest connects to the Docker daemon from the environment.
func NewSmokeTest(imageRef string, containerPort int) (*SmokeTest, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}
	return &SmokeTest{Image: imageRef, ContainerPort: containerPort, docker: cli}, nil
}

// Run pulls the image, starts it with the container port published on a
// loopback port chosen by the daemon, probes it and removes the container.
func (s *SmokeTest) Run(ctx context.Context) (*Result, error) {
	start := time.Now()

	pullOpts := image.PullOptions{}
	if s.Credentials != nil {
		auth, err := registry.EncodeAuthConfig(registry.AuthConfig{
			Username:      s.Credentials.Username,
			Password:      s.Credentials.Password,
			ServerAddress: s.Credentials.ServerAddress,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to encode registry credentials: %w", err)
		}
		pullOpts.RegistryAuth = auth
	}

	logging.Info("pulling image", "image", s.Image)
	reader, err := s.docker.ImagePull(ctx, s.Image, pullOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to pull image %s: %w", s.Image, err)
	}
	// Drain output to let the pull finish.
	_, _ = io.Copy(io.Discard, reader)
	reader.Close()

	port := nat.Port(fmt.Sprintf("%d/tcp", s.ContainerPort))
	config := &container.Config{
		Image:        s.Image,
		ExposedPorts: nat.PortSet{port: struct{}{}},
		Env:          []string{fmt.Sprintf("PORT=%d", s.ContainerPort)},
	}
	hostConfig := &container.HostConfig{
		PortBindings: nat.PortMap{
			port: []nat.PortBinding{{HostIP: "127.0.0.1", HostPort: ""}},
		},
	}

	resp, err := s.docker.ContainerCreate(ctx, config, hostConfig, &network.NetworkingConfig{}, &v1.Platform{}, "")
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}
	defer func() {
		// The context may already be done.
		rmCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.docker.ContainerRemove(rmCtx, resp.ID, container.RemoveOptions{Force: true}); err != nil && !client.IsErrNotFound(err) {
			logging.Warn("failed to remove smoke test container", "id", resp.ID, "error", err)
		}
	}()

	if err := s.docker.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	inspect, err := s.docker.ContainerInspect(ctx, resp.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect container: %w", err)
	}
	hostPort, err := publishedPort(inspect, port)
	if err != nil {
		return nil, err
	}

	path := s.Path
	if path == "" {
		path = "/"
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	url := fmt.Sprintf("http://127.0.0.1:%s%s", hostPort, path)

	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	attempts, err := Probe(probeCtx, s.httpClient(), url, time.Second)
	if err != nil {
		return nil, err
	}

	return &Result{ContainerID: resp.ID, URL: url, Attempts: attempts, Elapsed: time.Since(start)}, nil
}

func (s *SmokeTest) httpClient() *http.Client {
	if s.http != nil {
		return s.http
	}
	return &http.Client{Timeout: 5 * time.Second}
}

func publishedPort(inspect types.ContainerJSON, port nat.Port) (string, error) {
	if inspect.NetworkSettings == nil {
		return "", fmt.Errorf("container has no network settings")
	}
	for _, b := range inspect.NetworkSettings.Ports[port] {
		if b.HostPort != "" {
			return b.HostPort, nil
		}
	}
	return "", fmt.Errorf("container port %s is not published", port)
}

// Probe polls url until it answers 200 or ctx is done. It returns the
// number of requests made.
func Probe(ctx context.Context, hc *http.Client, url string, interval time.Duration) (int, error) {
	attempts := 0
	var last string
	for {
		attempts++
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return attempts, fmt.Errorf("invalid probe url: %w", err)
		}
		resp, err := hc.Do(req)
		if err == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return attempts, nil
			}
			last = fmt.Sprintf("status %d", resp.StatusCode)
		} else {
			last = err.Error()
		}
		logging.Debug("probe failed", "url", url, "attempt", attempts, "last", last)

		select {
		case <-ctx.Done():
			return attempts, fmt.Errorf("workload did not answer 200 on %s after %d attempts: %s", url, attempts, last)
		case <-time.After(interval):
		}
	}
}
