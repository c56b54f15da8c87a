package notification

import (
	"github.com/mhminhas/thinklab/internal/notification/service"
	"go.uber.org/fx"
)

var Module = fx.Module("notification",
	fx.Provide(service.New),
)
