//go:build windows
// +build windows

// Copyright (c) 2026 ToeiRei
// cachesweep - remote cache purge orchestrator
// This source code is licensed under the MIT license found in the LICENSE file.

package remote

import (
	"os"

	"github.com/Microsoft/go-winio"
	"github.com/davidmz/go-pageant"
	"golang.org/x/crypto/ssh/agent"
)

// openSSHAgentPipe is where the Windows OpenSSH agent listens by default.
const openSSHAgentPipe = `\\.\pipe\openssh-ssh-agent`

// getSSHAgent prefers a running Pageant and falls back to the OpenSSH agent
// pipe named by SSH_AUTH_SOCK or its default name.
func getSSHAgent() agent.Agent {
	if pageant.Available() {
		return pageant.New()
	}
	pipe := os.Getenv("SSH_AUTH_SOCK")
	if pipe == "" {
		pipe = openSSHAgentPipe
	}
	conn, err := winio.DialPipe(pipe, nil)
	if err != nil {
		return nil
	}
	return agent.NewClient(conn)
}
