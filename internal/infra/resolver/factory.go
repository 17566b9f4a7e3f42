package resolver

import (
	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"
)

// ProviderSpec describes one configured provider entry.
type ProviderSpec struct {
	Type     string
	Name     string
	Settings map[string]any
}

// SyncDirConfig holds the settings of a syncdir provider.
type SyncDirConfig struct {
	Dir    string `mapstructure:"dir" validate:"required"`
	Scheme string `mapstructure:"scheme" default:"sync://"`
}

// NewProvidersFromSpecs creates providers from configuration entries.
// An empty spec list is valid: the resolver then only handles plain
// local files.
func NewProvidersFromSpecs(specs []ProviderSpec) ([]Provider, error) {
	var providers []Provider

	for i, spec := range specs {
		var provider Provider
		var err error
		zlog.Debug().Msgf("creating source provider: index=%d type=%s settings=%+v", i+1, spec.Type, spec.Settings)
		switch spec.Type {
		case "syncdir":
			provider, err = newSyncDirFromSettings(spec.Name, spec.Settings)

		default:
			return nil, errors.Newf("unsupported provider type: %s (provider index %d)", spec.Type, i)
		}

		if err != nil {
			return nil, errors.Wrapf(err, "failed to create provider (index %d, type %s)", i, spec.Type)
		}

		providers = append(providers, provider)
		zlog.Info().Msgf("registered source provider: index=%d type=%s name=%s", i+1, spec.Type, provider.Name())
	}

	return providers, nil
}

func newSyncDirFromSettings(name string, settings map[string]any) (*SyncDirProvider, error) {
	var cfg SyncDirConfig
	if err := mapstructure.Decode(settings, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, errors.Wrap(err, "validation failed")
	}
	if name == "" {
		name = "syncdir"
	}
	return NewSyncDirProvider(name, cfg.Dir, cfg.Scheme), nil
}
