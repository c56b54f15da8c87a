package project

import (
	"github.com/mhminhas/thinklab/internal/project/service"
	"go.uber.org/fx"
)

var Module = fx.Module("project",
	fx.Provide(service.New),
)
