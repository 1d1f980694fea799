package discovery

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

// RecoveryAction determines how a Client responds to a CallTool failure.
type RecoveryAction int

const (
	// NoRetry — the error is not recoverable (bad request, auth, timeout).
	NoRetry RecoveryAction = iota
	// RetryNewSession — transport failure, recreate the session and retry once.
	RetryNewSession
)

const (
	// ReinitTimeout bounds session recreation during recovery.
	ReinitTimeout = 10 * time.Second
	// MCPInitTimeout bounds a server's initial connect + handshake.
	MCPInitTimeout = 30 * time.Second
)

// ClassifyError decides whether a CallTool failure is worth one retry on a
// fresh session.
func ClassifyError(err error) RecoveryAction {
	if err == nil {
		return NoRetry
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return NoRetry
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return NoRetry
		}
		return RetryNewSession
	}

	if isConnectionError(err) {
		return RetryNewSession
	}

	if isMCPProtocolError(err) {
		return NoRetry
	}

	return NoRetry
}

func isConnectionError(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, e := range []string{"connection refused", "connection reset", "broken pipe", "connection closed", "no such host"} {
		if strings.Contains(msg, e) {
			return true
		}
	}
	return false
}

func isMCPProtocolError(err error) bool {
	var wireErr *jsonrpc.Error
	if !errors.As(err, &wireErr) {
		return false
	}
	switch wireErr.Code {
	case jsonrpc.CodeParseError, jsonrpc.CodeInvalidRequest, jsonrpc.CodeMethodNotFound, jsonrpc.CodeInvalidParams:
		return true
	default:
		return false
	}
}

// jitteredBackoff returns one randomized delay in roughly [250ms, 750ms],
// reusing cenkalti/backoff/v4's default exponential backoff (500ms initial,
// 0.5 randomization factor) for exactly one step rather than hand-rolling
// jitter with math/rand.
func jitteredBackoff() time.Duration {
	b := backoff.NewExponentialBackOff()
	return b.NextBackOff()
}
