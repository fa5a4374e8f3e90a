// Copyright (c) 2026 ToeiRei
// cachesweep - remote cache purge orchestrator
// This source code is licensed under the MIT license found in the LICENSE file.

package remote

import (
	"context"
	"errors"
	"net"
	"strings"
)

// IsConnectionTimeoutError reports whether err is a timeout while
// connecting, handshaking or waiting on the remote side.
func IsConnectionTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	le := strings.ToLower(err.Error())
	return strings.Contains(le, "i/o timeout") || strings.Contains(le, "timed out")
}

// IsConnectionRefusedError reports whether the target actively refused the
// connection or could not be reached.
func IsConnectionRefusedError(err error) bool {
	if err == nil {
		return false
	}
	le := strings.ToLower(err.Error())
	return strings.Contains(le, "connection refused") || strings.Contains(le, "no route to host") ||
		strings.Contains(le, "network is unreachable") || strings.Contains(le, "no such host")
}

// IsAuthenticationError reports whether the server rejected every offered
// credential.
func IsAuthenticationError(err error) bool {
	if err == nil {
		return false
	}
	le := strings.ToLower(err.Error())
	return strings.Contains(le, "unable to authenticate") || strings.Contains(le, "no supported methods remain") ||
		strings.Contains(le, "permission denied")
}
