//go:build windows

// File: reactor/reactor_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Windows has no readiness-notification facility compatible with this
// engine's model (IOCP is completion-based). The factory reports that
// instead of pretending.

package reactor

import (
	"github.com/momentics/hioload-io/api"
)

func newPlatformReactor() (api.Reactor, error) {
	return nil, api.ErrNotSupported
}
