package core

import (
	"github.com/aretw0/introspection"
)

// ServiceState exposes internal state for observability.
type ServiceState struct {
	StoreType    string `json:"store_type"`
	RegistryType string `json:"registry_type"`
	ReadOnly     bool   `json:"read_only"`
	DefaultLimit int    `json:"default_limit"`
	MaxLimit     int    `json:"max_limit"`
	Merges       uint64 `json:"merges"`
	Searches     uint64 `json:"searches"`
}

// State implements introspection.Introspectable.
func (s *Service) State() any {
	return ServiceState{
		StoreType:    componentType(s.store, "store"),
		RegistryType: componentType(s.registry, "registry"),
		ReadOnly:     s.readOnly,
		DefaultLimit: s.defaultLimit,
		MaxLimit:     s.maxLimit,
		Merges:       s.merges.Load(),
		Searches:     s.searches.Load(),
	}
}

// ComponentType implements introspection.Component.
func (s *Service) ComponentType() string {
	return "service"
}

func componentType(v any, fallback string) string {
	if comp, ok := v.(introspection.Component); ok {
		return comp.ComponentType()
	}
	return fallback
}

var _ introspection.Introspectable = (*Service)(nil)
var _ introspection.Component = (*Service)(nil)
