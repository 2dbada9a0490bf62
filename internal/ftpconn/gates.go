package ftpconn

import (
	"context"
	"time"
)

// GateResult is what a failed gate reports to the dispatcher.
type GateResult struct {
	Code    int
	Message string
}

// Gate is one composable precondition, evaluated in order by the
// dispatcher before a handler runs (Design Note "Decorator-chained
// preconditions"): short-circuit on the first failure.
type Gate func(ctx context.Context, c *Connection) (ok bool, fail GateResult)

// slotGate builds a Gate awaiting f with the given timeout. A zero
// timeout fails immediately if unset ("bad sequence", 503); a non-zero
// timeout (used only by the data-connection gate) waits that long
// before answering 425.
func slotGate(f func(c *Connection) *Future, timeout time.Duration, onTimeoutCode int, onTimeoutMsg string) Gate {
	return func(ctx context.Context, c *Connection) (bool, GateResult) {
		slot := f(c)
		if timeout <= 0 {
			if _, ok := slot.Peek(); !ok {
				return false, GateResult{Code: onTimeoutCode, Message: onTimeoutMsg}
			}
			return true, GateResult{}
		}
		waitCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if _, ok := slot.Get(waitCtx); !ok {
			return false, GateResult{Code: onTimeoutCode, Message: onTimeoutMsg}
		}
		return true, GateResult{}
	}
}

// UserRequired fails with 503 unless USER has been given.
func UserRequired() Gate {
	return slotGate(func(c *Connection) *Future { return c.user }, 0, 503, "login with USER first")
}

// LoginRequired fails with 530 unless PASS succeeded.
func LoginRequired() Gate {
	return func(ctx context.Context, c *Connection) (bool, GateResult) {
		if !c.Logged() {
			return false, GateResult{Code: 530, Message: "not logged in"}
		}
		return true, GateResult{}
	}
}

// PassiveServerStarted fails with 503 unless PASV/EPSV has been issued.
func PassiveServerStarted() Gate {
	return slotGate(func(c *Connection) *Future { return c.passiveServer }, 0, 503, "send PASV or EPSV first")
}

// DataConnectionMade waits up to 1s for the client to connect to the
// passive listener, then fails with 425 if it never does.
func DataConnectionMade() Gate {
	return slotGate(func(c *Connection) *Future { return c.dataConnection }, 1*time.Second, 425, "no data connection")
}

// RenameFromRequired fails with 503 unless RNFR has staged a source path.
func RenameFromRequired() Gate {
	return slotGate(func(c *Connection) *Future { return c.renameFrom }, 0, 503, "send RNFR first")
}
