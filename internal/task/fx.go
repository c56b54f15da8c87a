package task

import (
	"github.com/mhminhas/thinklab/internal/task/service"
	"go.uber.org/fx"
)

var Module = fx.Module("task",
	fx.Provide(service.New),
)
