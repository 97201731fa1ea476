package connector

import (
	"errors"
	"fmt"
	"time"

	"github.com/feedbridge/feedbridge/internal/dedup"
)

// ErrInvalidConfiguration wraps every configuration violation. A
// connector carrying one must not be activated.
var ErrInvalidConfiguration = errors.New("invalid connector configuration")

// Config is one connector's fleet definition, loaded from the fleet
// file. Every field is validated eagerly at load time.
type Config struct {
	// ID identifies the connector everywhere: storage, subjects,
	// metrics. Required.
	ID string `koanf:"id"`

	// Name is the human-readable label used in notifications.
	Name string `koanf:"name"`

	// Mode is the dedup emission policy: all, on_change, or merge.
	// Empty defaults to all.
	Mode string `koanf:"mode"`

	// UniquenessLookBack overrides the dedup look-back window outright
	// when positive.
	UniquenessLookBack int `koanf:"uniqueness_look_back"`

	// LookBackFactor scales the window by the invocation's candidate
	// count. Zero means the default.
	LookBackFactor int `koanf:"look_back_factor"`

	// LookBackFloor is the minimum window. Zero means the default.
	LookBackFloor int `koanf:"look_back_floor"`

	// KeepAliveOnDuplicate extends a matched event's expiry when its
	// payload is re-seen. Deprecated behavior, off by default.
	KeepAliveOnDuplicate bool `koanf:"keep_alive_on_duplicate"`

	// SendBatchEvents buffers created events and delivers them in bulk.
	// Off means each event is delivered as it is created.
	SendBatchEvents bool `koanf:"send_batch_events"`

	// MaxEventsPerBatch is the flush batch size. Required and positive
	// when batching is on.
	MaxEventsPerBatch int `koanf:"max_events_per_batch"`

	// StalenessChecks is how many checks a partial batch may sit
	// through before the next check flushes it. Zero means the default.
	StalenessChecks int `koanf:"staleness_checks"`

	// MaxStaleness flushes a partial batch by age instead of check
	// count. Zero disables the age trigger.
	MaxStaleness time.Duration `koanf:"max_staleness"`

	// EmitEvents publishes a result message per delivered or failed
	// event.
	EmitEvents bool `koanf:"emit_events"`

	// CheckInterval is the scheduled invocation period. Required when
	// batching is on; zero makes the connector purely push-driven.
	CheckInterval time.Duration `koanf:"check_interval"`

	// EventTTL sets the stored events' expiry horizon. Zero means
	// events never expire.
	EventTTL time.Duration `koanf:"event_ttl"`
}

// Validate checks the whole definition and reports every violation at
// once, wrapped in ErrInvalidConfiguration.
func (c Config) Validate() error {
	var errs []error

	if c.ID == "" {
		errs = append(errs, errors.New("id is required"))
	}
	if _, err := dedup.ParseMode(c.Mode); err != nil {
		errs = append(errs, err)
	}
	if c.UniquenessLookBack < 0 {
		errs = append(errs, fmt.Errorf("uniqueness_look_back must be positive, got %d", c.UniquenessLookBack))
	}
	if c.LookBackFactor < 0 {
		errs = append(errs, fmt.Errorf("look_back_factor must be positive, got %d", c.LookBackFactor))
	}
	if c.LookBackFloor < 0 {
		errs = append(errs, fmt.Errorf("look_back_floor must be positive, got %d", c.LookBackFloor))
	}

	if c.SendBatchEvents {
		if c.MaxEventsPerBatch <= 0 {
			errs = append(errs, errors.New("max_events_per_batch is required and must be greater than 0 when send_batch_events is set"))
		}
		if c.CheckInterval <= 0 {
			errs = append(errs, errors.New("check_interval is required when send_batch_events is set"))
		}
	}
	if c.StalenessChecks < 0 {
		errs = append(errs, fmt.Errorf("staleness_checks must be positive, got %d", c.StalenessChecks))
	}
	if c.MaxStaleness < 0 {
		errs = append(errs, fmt.Errorf("max_staleness must be positive, got %s", c.MaxStaleness))
	}
	if c.CheckInterval < 0 {
		errs = append(errs, fmt.Errorf("check_interval must be positive, got %s", c.CheckInterval))
	}
	if c.EventTTL < 0 {
		errs = append(errs, fmt.Errorf("event_ttl must be positive, got %s", c.EventTTL))
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfiguration, errors.Join(errs...))
}

// DedupConfig derives the dedup module configuration.
func (c Config) DedupConfig() dedup.Config {
	return dedup.Config{
		Mode:      c.Mode,
		LookBack:  c.UniquenessLookBack,
		Factor:    c.LookBackFactor,
		Floor:     c.LookBackFloor,
		KeepAlive: c.KeepAliveOnDuplicate,
	}
}
