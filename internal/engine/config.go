package engine

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Veraticus/draftflow/internal/cache"
	"github.com/Veraticus/draftflow/internal/common"
	"github.com/Veraticus/draftflow/internal/fetch"
	"github.com/Veraticus/draftflow/internal/flow"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config holds configuration options for the engine.
type Config struct {
	// Location anchors day and week buckets. Nil means time.Local.
	Location *time.Location `validate:"-"`
	// OnPage is forwarded to the fetcher for progress reporting.
	OnPage          func(fetch.PageEvent) `validate:"-"`
	FlowAttribution flow.Attribution      `validate:"oneof=even exact"`
	Cache           cache.Options         `validate:"-"`
	PageSize        int                   `validate:"gte=1,lte=1000"`
	MaxConcurrency  int                   `validate:"gte=1,lte=32"`
	WaveDelay       time.Duration         `validate:"gte=0"`
	// PushDown sends aggregates the store can compute as named procedures.
	PushDown bool
	// FailOnPartial turns page warnings into a *common.PartialFetchError.
	FailOnPartial bool
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	opts := fetch.DefaultOptions()
	return Config{
		Location:        time.Local,
		FlowAttribution: flow.AttributionEven,
		Cache:           cache.DefaultOptions(),
		PageSize:        opts.PageSize,
		MaxConcurrency:  opts.MaxConcurrency,
		WaveDelay:       opts.WaveDelay,
		PushDown:        true,
	}
}

// Validate checks the configuration against its constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", common.ErrInvalidConfig, err)
	}
	return nil
}

func (c Config) fetchOptions() fetch.Options {
	return fetch.Options{
		OnPage:         c.OnPage,
		PageSize:       c.PageSize,
		MaxConcurrency: c.MaxConcurrency,
		WaveDelay:      c.WaveDelay,
	}
}
