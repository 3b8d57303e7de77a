//go:build darwin

package peripheral

import (
	"context"
	"fmt"

	"github.com/srg/bleperiph/pkg/config"
	"github.com/srg/bleperiph/pkg/platform"
	"github.com/srg/bleperiph/pkg/platform/goble"
)

// Dial is the production entry point: it parses addr, brings up a go-ble
// backed platform stack configured from cfg and constructs the device on it.
// A nil cfg uses defaults. ResolveTimeout bounds resolution and session
// establishment; ConnectTimeout becomes the default deadline for Connect
// calls whose context carries none.
func Dial(
	ctx context.Context,
	cfg *config.Config,
	addr string,
	onConnectionChanged ConnectionChangedHandler,
	onMaxPDUSizeChanged MaxPDUSizeChangedHandler,
) (*Device, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	a, err := platform.ParseAddr(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOperationFailed, err)
	}

	logger := cfg.NewLogger()

	if cfg.ResolveTimeout.Std() > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ResolveTimeout.Std())
		defer cancel()
	}

	return newDevice(ctx, goble.NewStack(logger), a, onConnectionChanged, onMaxPDUSizeChanged,
		logger, cfg.EventQueueSize, cfg.ConnectTimeout.Std())
}
