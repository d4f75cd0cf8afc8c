package plugin

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// DecodeConfig decodes a plugin's raw configuration map into out. Numbers
// and strings convert loosely, durations parse from strings such as "200ms",
// and unknown keys are rejected.
func DecodeConfig(raw map[string]any, out any) error {
	if raw == nil {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(raw); err != nil {
		return fmt.Errorf("invalid plugin config: %w", err)
	}
	return nil
}
