package config

import (
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Watcher drives hot-reload of a config file: on every write, it
// reloads via Load and invokes onChange with the new config. Mirrors
// the teacher's SIGHUP + fsnotify reload path, generalized into one
// file-watch mechanism per spec.md §6.5 rather than requiring a signal.
type Watcher struct {
	path string
	v    *viper.Viper
}

// WatchConfig starts watching path for changes and calls onChange with
// the freshly loaded GlobalConfig whenever the file is rewritten.
// onChange errors are not propagated; callers should log them.
func WatchConfig(path string, onChange func(*GlobalConfig, error)) (*Watcher, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	v.OnConfigChange(func(fsnotify.Event) {
		cfg, err := Load(path)
		onChange(cfg, err)
	})
	v.WatchConfig()

	return &Watcher{path: path, v: v}, nil
}
