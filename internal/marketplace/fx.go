package marketplace

import (
	"github.com/mhminhas/thinklab/internal/marketplace/service"
	"go.uber.org/fx"
)

var Module = fx.Module("marketplace",
	fx.Provide(service.New),
)
