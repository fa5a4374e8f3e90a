// Copyright (c) 2026 ToeiRei
// cachesweep - remote cache purge orchestrator
// This source code is licensed under the MIT license found in the LICENSE file.

// Package model holds the domain types shared by the store, the engine and
// the outer surfaces.
package model

import (
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultPort is used when a host does not specify one.
	DefaultPort = 22
	// DefaultKeyPath is the private key used when a host does not name one.
	DefaultKeyPath = "/root/.ssh/id_ed25519"
)

// Transport selects how a purge reaches the remote filesystem.
type Transport string

const (
	// TransportSSH runs find/rm through a remote shell.
	TransportSSH Transport = "ssh"
	// TransportSFTP walks the tree over the sftp subsystem and removes files.
	TransportSFTP Transport = "sftp"
)

// RunStatus is the lifecycle state of a ClearRun.
type RunStatus string

const (
	StatusRunning RunStatus = "running"
	StatusSuccess RunStatus = "success"
	StatusFailed  RunStatus = "failed"
)

// Terminal reports whether the status is a final outcome.
func (s RunStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Host is a registered remote target together with its clear policy.
type Host struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Hostname    string    `json:"hostname"`
	Port        int       `json:"port"`
	Username    string    `json:"username"`
	SSHKey      string    `json:"ssh_key"`
	Group       string    `json:"grp"`
	RemotePaths []string  `json:"remote_paths"`
	Schedule    string    `json:"schedule"`
	KeepLast    int       `json:"keep_last"`
	Transport   Transport `json:"transport"`
	UseSudo     bool      `json:"use_sudo"`
	CreatedAt   time.Time `json:"created_at"`
}

// String returns user@host:port, the form used in log lines.
func (h Host) String() string {
	port := h.Port
	if port == 0 {
		port = DefaultPort
	}
	return fmt.Sprintf("%s@%s:%d", h.Username, h.Hostname, port)
}

// HasSchedule reports whether the host carries a recurring schedule.
func (h Host) HasSchedule() bool {
	return strings.TrimSpace(h.Schedule) != ""
}

// ActivePaths returns the configured paths with blank entries dropped and
// surrounding whitespace trimmed, preserving order.
func (h Host) ActivePaths() []string {
	out := make([]string, 0, len(h.RemotePaths))
	for _, p := range h.RemotePaths {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// HostSummary is a Host enriched with its latest run, if any.
type HostSummary struct {
	Host
	LastStatus       *RunStatus `json:"last_status"`
	LastRun          *time.Time `json:"last_run"`
	LastFilesDeleted *int       `json:"last_files_deleted"`
}

// ClearRun records one execution of the purge against a host.
type ClearRun struct {
	ID           string     `json:"id"`
	HostID       string     `json:"host_id"`
	HostName     string     `json:"host_name,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at"`
	Status       RunStatus  `json:"status"`
	FilesDeleted *int       `json:"files_deleted"`
	Message      *string    `json:"message"`
}

// Duration returns how long a finished run took; zero while running.
func (r ClearRun) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Export is the payload written by the history export.
type Export struct {
	Version    int        `json:"version"`
	ExportedAt time.Time  `json:"exported_at"`
	Hosts      []Host     `json:"hosts"`
	Runs       []ClearRun `json:"runs"`
}
