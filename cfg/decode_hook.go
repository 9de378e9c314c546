package cfg

import (
	"github.com/mitchellh/mapstructure"
)

// DecodeHook composes the decode hooks viper.Unmarshal needs to turn raw
// YAML/flag string values into Config's custom types, mirroring the
// teacher's own DecodeHook composition. TextUnmarshallerHookFunc alone
// covers Mode and LogSeverity since both implement encoding.TextUnmarshaler;
// the duration/slice hooks are carried along for any future field that
// needs them, the same defensive default the teacher applies everywhere
// it composes decode hooks.
func DecodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}
