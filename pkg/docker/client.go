// Package docker 封装 Docker API 客户端
//
// 使用官方 github.com/moby/moby/client 库
// 提供沙箱可用性探测与残留容器清理，命令本身由 internal/exec 的
// Runner 通过 docker CLI 启动
package docker

import (
	"context"
	"fmt"
	"sync"

	"github.com/containerd/errdefs"
	"github.com/moby/moby/client"
)

// Client Docker客户端封装
type Client struct {
	cli *client.Client

	mu     sync.Mutex
	active map[string]struct{} // 进行中执行的容器名
}

// NewClient 创建Docker客户端
func NewClient() (*Client, error) {
	cli, err := client.New(client.FromEnv)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &Client{cli: cli, active: make(map[string]struct{})}, nil
}

// Close 关闭客户端
func (c *Client) Close() error {
	return c.cli.Close()
}

// Ping 检查Docker连接
//
// 启动时作为沙箱预检：守护进程不可达时拒绝启动，
// 避免 exec 命令在运行期才暴露环境问题。
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.cli.Ping(ctx, client.PingOptions{})
	return err
}

// Track 登记一个进行中执行的容器名
func (c *Client) Track(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active[name] = struct{}{}
}

// Untrack 移除执行结束的容器名
func (c *Client) Untrack(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.active, name)
}

// ContainerExists 检查容器是否存在
func (c *Client) ContainerExists(ctx context.Context, name string) (bool, error) {
	_, err := c.cli.ContainerInspect(ctx, name, client.ContainerInspectOptions{})
	if err != nil {
		if errdefs.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// IsContainerRunning 检查容器是否在运行
func (c *Client) IsContainerRunning(ctx context.Context, name string) (bool, error) {
	result, err := c.cli.ContainerInspect(ctx, name, client.ContainerInspectOptions{})
	if err != nil {
		if errdefs.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return result.Container.State.Running, nil
}

// StopContainer 停止容器
func (c *Client) StopContainer(ctx context.Context, name string, timeout *int) error {
	opts := client.ContainerStopOptions{}
	if timeout != nil {
		opts.Timeout = timeout
	}
	_, err := c.cli.ContainerStop(ctx, name, opts)
	return err
}

// RemoveContainer 删除容器
func (c *Client) RemoveContainer(ctx context.Context, name string, force bool) error {
	_, err := c.cli.ContainerRemove(ctx, name, client.ContainerRemoveOptions{
		Force:         force,
		RemoveVolumes: false,
	})
	return err
}

// Reap 停止并删除一个执行容器，容器不存在视为已清理
//
// 容器以 --rm 启动，正常退出会自行消失；Reap 覆盖的是
// 进程被守护进程之外的方式打断、容器残留的情况。
func (c *Client) Reap(ctx context.Context, name string) error {
	running, err := c.IsContainerRunning(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to inspect container %s: %w", name, err)
	}
	if running {
		stopTimeout := 1
		if err := c.StopContainer(ctx, name, &stopTimeout); err != nil && !errdefs.IsNotFound(err) {
			return fmt.Errorf("failed to stop container %s: %w", name, err)
		}
	}

	// --rm 的容器停住后可能已经自行消失
	exists, err := c.ContainerExists(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to inspect container %s: %w", name, err)
	}
	if exists {
		if err := c.RemoveContainer(ctx, name, true); err != nil && !errdefs.IsNotFound(err) {
			return fmt.Errorf("failed to remove container %s: %w", name, err)
		}
	}
	c.Untrack(name)
	return nil
}

// ReapActive 清理所有登记在案的执行容器，用于进程退出前的兜底
func (c *Client) ReapActive(ctx context.Context) []error {
	c.mu.Lock()
	names := make([]string, 0, len(c.active))
	for name := range c.active {
		names = append(names, name)
	}
	c.mu.Unlock()

	var errs []error
	for _, name := range names {
		if err := c.Reap(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
