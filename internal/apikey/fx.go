package apikey

import (
	"github.com/mhminhas/thinklab/internal/apikey/repository"
	"github.com/mhminhas/thinklab/internal/apikey/service"
	"go.uber.org/fx"
)

var Module = fx.Module("apikey",
	fx.Provide(
		repository.Provide,
		service.New,
	),
)
