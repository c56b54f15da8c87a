package account

import (
	"github.com/mhminhas/thinklab/internal/account/repository"
	"github.com/mhminhas/thinklab/internal/account/service"
	"go.uber.org/fx"
)

var Module = fx.Module("account",
	fx.Provide(
		repository.Provide,
		service.New,
	),
)
