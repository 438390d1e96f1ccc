package chain

import (
	"context"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
)

const codeMethodNotFound = -32601

// Transient reports whether an RPC error is worth retrying: network faults,
// timeouts, 429 and 5xx responses, and the provider rate-limit JSON-RPC codes
// -32005 and -32016. Malformed requests, unknown methods and other
// application-level JSON-RPC errors are permanent for the current range.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == 429 || httpErr.StatusCode >= 500
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		switch rpcErr.ErrorCode() {
		case codeMethodNotFound:
			return false
		case -32005, -32016: // provider rate-limit codes
			return true
		}
		return false
	}

	// Connection resets, DNS failures, short reads.
	return true
}

// IsMethodNotFound reports whether the endpoint rejected the method itself,
// the signal for the Blocks-mode receipts probe to fall back to the Alchemy
// variant.
func IsMethodNotFound(err error) bool {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == codeMethodNotFound {
		return true
	}
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "method not found") ||
		strings.Contains(msg, "method not supported") ||
		strings.Contains(msg, "unsupported method") ||
		strings.Contains(msg, "does not exist/is not available")
}
