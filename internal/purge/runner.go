// Copyright (c) 2026 ToeiRei
// cachesweep - remote cache purge orchestrator
// This source code is licensed under the MIT license found in the LICENSE file.

package purge

import (
	"context"

	"github.com/toeirei/cachesweep/internal/model"
	"github.com/toeirei/cachesweep/internal/remote"
)

// Runner purges a single remote path on a host. A non-zero exit code with a
// nil error means the remote side ran and reported a problem; a non-nil error
// means the purge could not be carried out.
type Runner interface {
	Purge(ctx context.Context, host model.Host, path string) (remote.Result, error)
}

// RemoteRunner purges over a fresh SSH connection per path.
type RemoteRunner struct {
	Exec *remote.Executor
}

// NewRemoteRunner returns a RemoteRunner dialing with d.
func NewRemoteRunner(d remote.Dialer) *RemoteRunner {
	return &RemoteRunner{Exec: remote.NewExecutor(d)}
}

// TargetFor maps a host profile to its SSH login.
func TargetFor(h model.Host) remote.Target {
	return remote.Target{Host: h.Hostname, Port: h.Port, User: h.Username, KeyPath: h.SSHKey}
}

// PurgeCommand returns the find invocation that deletes every regular file
// below path and prints one line per deletion.
func PurgeCommand(path string, useSudo bool) []string {
	argv := []string{"find", path, "-type", "f", "-exec", "rm", "-v", "{}", ";"}
	if useSudo {
		// -n fails instead of waiting for a password that can never be typed.
		argv = append([]string{"sudo", "-n"}, argv...)
	}
	return argv
}

// Purge implements Runner.
func (r *RemoteRunner) Purge(ctx context.Context, host model.Host, path string) (remote.Result, error) {
	target := TargetFor(host)
	if host.Transport == model.TransportSFTP {
		return r.Exec.PurgeSFTP(ctx, target, path)
	}
	return r.Exec.Exec(ctx, target, PurgeCommand(path, host.UseSudo))
}
