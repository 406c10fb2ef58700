package app

import (
	"github.com/operator13/spotify-datapipeline/internal/registry"
	"github.com/operator13/spotify-datapipeline/modules/dbt"
	"github.com/operator13/spotify-datapipeline/modules/kaggle"
	"github.com/operator13/spotify-datapipeline/modules/noop"
	"github.com/operator13/spotify-datapipeline/modules/slack"
	"github.com/operator13/spotify-datapipeline/modules/warehouse"
)

// coreModules is the default set of action modules registered when the
// caller does not supply its own.
var coreModules = []registry.Module{
	&noop.Module{},
	&kaggle.Module{},
	&warehouse.Module{},
	&dbt.Module{},
	&slack.Module{},
}
