// Copyright (c) 2026 ToeiRei
// cachesweep - remote cache purge orchestrator
// This source code is licensed under the MIT license found in the LICENSE file.

// Package remote connects to hosts over SSH and runs commands or sftp
// operations against them.
package remote // import "github.com/toeirei/cachesweep/internal/remote"

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

const (
	// DefaultPort is the SSH port used when a target does not name one.
	DefaultPort = 22
	// DefaultConnectTimeout bounds the TCP connect and the SSH handshake.
	DefaultConnectTimeout = 10 * time.Second
)

// Target identifies a remote login.
type Target struct {
	Host    string
	Port    int
	User    string
	KeyPath string
}

// Addr returns host:port, defaulting the port to 22.
func (t Target) Addr() string {
	port := t.Port
	if port <= 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(t.Host, strconv.Itoa(port))
}

func (t Target) String() string {
	return t.User + "@" + t.Addr()
}

// Result is the outcome of a remote command that ran to completion.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Dialer opens SSH connections. The zero value is ready to use.
type Dialer struct {
	// ConnectTimeout bounds TCP connect plus handshake. Zero means DefaultConnectTimeout.
	ConnectTimeout time.Duration
	// ReadFile loads private keys; os.ReadFile when nil.
	ReadFile func(string) ([]byte, error)
	// Agent returns the SSH agent to fall back to; the SSH_AUTH_SOCK agent when nil.
	Agent func() agent.Agent
}

func (d Dialer) timeout() time.Duration {
	if d.ConnectTimeout > 0 {
		return d.ConnectTimeout
	}
	return DefaultConnectTimeout
}

// authMethods loads the key at path. When the key file does not exist the
// SSH agent is used instead, if one is reachable.
func (d Dialer) authMethods(path string) ([]ssh.AuthMethod, error) {
	readFile := d.ReadFile
	if readFile == nil {
		readFile = os.ReadFile
	}
	data, err := readFile(path)
	if err == nil {
		signer, perr := ssh.ParsePrivateKey(data)
		if perr != nil {
			return nil, fmt.Errorf("unable to parse private key %s: %w", path, perr)
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("unable to read private key %s: %w", path, err)
	}
	getAgent := d.Agent
	if getAgent == nil {
		getAgent = getSSHAgent
	}
	if ag := getAgent(); ag != nil {
		return []ssh.AuthMethod{ssh.PublicKeysCallback(ag.Signers)}, nil
	}
	return nil, fmt.Errorf("private key %s not found and no ssh agent available", path)
}

// Dial connects and authenticates to t. Host keys are accepted without
// verification and nothing is recorded about them.
func (d Dialer) Dial(ctx context.Context, t Target) (*Client, error) {
	auth, err := d.authMethods(t.KeyPath)
	if err != nil {
		return nil, err
	}
	timeout := d.timeout()
	addr := t.Addr()
	cfg := &ssh.ClientConfig{
		User:            t.User,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}

	nd := net.Dialer{Timeout: timeout}
	conn, err := nd.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}
	deadline := time.Now().Add(timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = conn.SetDeadline(deadline)
	cc, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	_ = conn.SetDeadline(time.Time{})
	return &Client{ssh: ssh.NewClient(cc, chans, reqs)}, nil
}

// Client is an authenticated SSH connection.
type Client struct {
	ssh *ssh.Client
}

// Run executes argv as a single remote command line, each element quoted
// with ShellQuote. A non-zero exit status is reported in Result.ExitCode with
// a nil error. When ctx ends first the connection is closed and ctx.Err() is
// returned together with whatever output had arrived.
func (c *Client) Run(ctx context.Context, argv []string) (Result, error) {
	if len(argv) == 0 {
		return Result{ExitCode: -1}, errors.New("empty command")
	}
	session, err := c.ssh.NewSession()
	if err != nil {
		return Result{ExitCode: -1}, fmt.Errorf("open session: %w", err)
	}
	defer func() { _ = session.Close() }()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr
	if err := session.Start(ShellQuote(argv)); err != nil {
		return Result{ExitCode: -1}, fmt.Errorf("start command: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- session.Wait() }()

	select {
	case <-ctx.Done():
		// Closing the connection is the only way to interrupt the remote side.
		_ = c.ssh.Close()
		<-done
		return Result{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: -1}, ctx.Err()
	case err = <-done:
	}

	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitStatus()
			return res, nil
		}
		res.ExitCode = -1
		return res, fmt.Errorf("run command: %w", err)
	}
	return res, nil
}

// SFTP opens an sftp session on the connection.
func (c *Client) SFTP() (*sftp.Client, error) {
	sc, err := sftp.NewClient(c.ssh)
	if err != nil {
		return nil, fmt.Errorf("failed to create sftp client: %w", err)
	}
	return sc, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	if c == nil || c.ssh == nil {
		return nil
	}
	return c.ssh.Close()
}
