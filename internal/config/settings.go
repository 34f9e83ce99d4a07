package config

import "github.com/spf13/viper"

// Section is a read-only key-value view over one section of a viper config.
type Section struct {
	v    *viper.Viper
	name string
}

// Get returns the value stored under key, or def when the key is unset.
func (s Section) Get(key string, def any) any {
	k := s.name + "." + key
	if s.v == nil || !s.v.IsSet(k) {
		return def
	}
	return s.v.Get(k)
}

// StaticSettings is a fixed set of values, used when no viper instance backs
// the configuration.
type StaticSettings map[string]any

// Get returns the value stored under key, or def when the key is absent.
func (s StaticSettings) Get(key string, def any) any {
	if v, ok := s[key]; ok {
		return v
	}
	return def
}
