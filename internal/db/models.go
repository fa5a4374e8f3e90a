// Copyright (c) 2026 ToeiRei
// cachesweep - remote cache purge orchestrator
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/toeirei/cachesweep/internal/model"
	"github.com/uptrace/bun"
)

// HostModel is the bun model for the hosts table.
type HostModel struct {
	bun.BaseModel `bun:"table:hosts,alias:h"`

	ID          string    `bun:"id,pk"`
	Name        string    `bun:"name"`
	Hostname    string    `bun:"hostname"`
	Port        int       `bun:"port"`
	Username    string    `bun:"username"`
	SSHKey      string    `bun:"ssh_key"`
	Group       string    `bun:"grp"`
	RemotePaths string    `bun:"remote_paths"`
	Schedule    *string   `bun:"schedule"`
	KeepLast    int       `bun:"keep_last"`
	Transport   string    `bun:"transport"`
	UseSudo     bool      `bun:"use_sudo"`
	CreatedAt   time.Time `bun:"created_at"`
}

// ClearRunModel is the bun model for the clear_history table.
type ClearRunModel struct {
	bun.BaseModel `bun:"table:clear_history,alias:ch"`

	ID           string     `bun:"id,pk"`
	HostID       string     `bun:"host_id"`
	StartedAt    time.Time  `bun:"started_at"`
	FinishedAt   *time.Time `bun:"finished_at"`
	Status       string     `bun:"status"`
	FilesDeleted *int       `bun:"files_deleted"`
	Message      *string    `bun:"message"`
	HostName     string     `bun:"host_name,scanonly"`
}

func hostToModel(h model.Host) (HostModel, error) {
	paths := h.RemotePaths
	if paths == nil {
		paths = []string{}
	}
	encoded, err := json.Marshal(paths)
	if err != nil {
		return HostModel{}, fmt.Errorf("encode remote_paths: %w", err)
	}
	m := HostModel{
		ID:          h.ID,
		Name:        h.Name,
		Hostname:    h.Hostname,
		Port:        h.Port,
		Username:    h.Username,
		SSHKey:      h.SSHKey,
		Group:       h.Group,
		RemotePaths: string(encoded),
		KeepLast:    h.KeepLast,
		Transport:   string(h.Transport),
		UseSudo:     h.UseSudo,
		CreatedAt:   h.CreatedAt.UTC(),
	}
	if m.Port == 0 {
		m.Port = model.DefaultPort
	}
	if m.SSHKey == "" {
		m.SSHKey = model.DefaultKeyPath
	}
	if m.Transport == "" {
		m.Transport = string(model.TransportSSH)
	}
	if s := strings.TrimSpace(h.Schedule); s != "" {
		m.Schedule = &s
	}
	return m, nil
}

func (m HostModel) toHost() (model.Host, error) {
	var paths []string
	if strings.TrimSpace(m.RemotePaths) != "" {
		if err := json.Unmarshal([]byte(m.RemotePaths), &paths); err != nil {
			return model.Host{}, fmt.Errorf("decode remote_paths for host %s: %w", m.ID, err)
		}
	}
	h := model.Host{
		ID:          m.ID,
		Name:        m.Name,
		Hostname:    m.Hostname,
		Port:        m.Port,
		Username:    m.Username,
		SSHKey:      m.SSHKey,
		Group:       m.Group,
		RemotePaths: paths,
		KeepLast:    m.KeepLast,
		Transport:   model.Transport(m.Transport),
		UseSudo:     m.UseSudo,
		CreatedAt:   m.CreatedAt,
	}
	if m.Schedule != nil {
		h.Schedule = *m.Schedule
	}
	if h.Transport == "" {
		h.Transport = model.TransportSSH
	}
	return h, nil
}

func (m ClearRunModel) toRun() model.ClearRun {
	return model.ClearRun{
		ID:           m.ID,
		HostID:       m.HostID,
		HostName:     m.HostName,
		StartedAt:    m.StartedAt,
		FinishedAt:   m.FinishedAt,
		Status:       model.RunStatus(m.Status),
		FilesDeleted: m.FilesDeleted,
		Message:      m.Message,
	}
}

func runsFromModels(ms []ClearRunModel) []model.ClearRun {
	out := make([]model.ClearRun, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.toRun())
	}
	return out
}
