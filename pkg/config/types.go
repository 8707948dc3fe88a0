package config

import (
	"fmt"
	"sort"

	"github.com/go-viper/mapstructure/v2"
)

// Top-level configuration sections.
const (
	SectionAPITools           = "api-tools"
	SectionConnected          = "doctrine-connected"
	SectionRest               = "api-tools-rest"
	SectionObjectManagers     = "object_managers"
	SectionHydrators          = "hydrators"
	SectionQueryProviders     = "query_providers"
	SectionQueryCreateFilters = "query_create_filters"
	SectionListeners          = "listeners"
	SectionOAuth2             = "oauth2"
)

// ResourceConfig is the declaration of one connected resource under
// api-tools.doctrine-connected.<name>.
type ResourceConfig struct {
	// Class names the registered resource type. Defaults to the logical name.
	Class string `mapstructure:"class" json:"class,omitempty" yaml:"class,omitempty"`
	// ObjectManager is the locator name of the persistence manager. Required.
	ObjectManager string `mapstructure:"object_manager" json:"object_manager" yaml:"object_manager"`
	// Hydrator is an optional hydrator name.
	Hydrator string `mapstructure:"hydrator" json:"hydrator,omitempty" yaml:"hydrator,omitempty"`
	// EntityClass overrides the entity class from the REST descriptor.
	EntityClass string `mapstructure:"entity_class" json:"entity_class,omitempty" yaml:"entity_class,omitempty"`
	// QueryProviders maps an operation name to a query provider alias.
	QueryProviders map[string]string `mapstructure:"query_providers" json:"query_providers,omitempty" yaml:"query_providers,omitempty"`
	// QueryCreateFilter is the filter alias; "default" when empty.
	QueryCreateFilter string `mapstructure:"query_create_filter" json:"query_create_filter,omitempty" yaml:"query_create_filter,omitempty"`
	// Listeners are listener names attached in declaration order.
	Listeners []string `mapstructure:"listeners" json:"listeners,omitempty" yaml:"listeners,omitempty"`
}

// RestDescriptor is one REST endpoint entry from the api-tools-rest section.
type RestDescriptor struct {
	Controller           string `mapstructure:"controller" json:"controller,omitempty"`
	Listener             string `mapstructure:"listener" json:"listener"`
	EntityIdentifierName string `mapstructure:"entity_identifier_name" json:"entity_identifier_name,omitempty"`
	EntityClass          string `mapstructure:"entity_class" json:"entity_class,omitempty"`
	RouteIdentifierName  string `mapstructure:"route_identifier_name" json:"route_identifier_name,omitempty"`
}

// ConnectedNames returns the declared logical names in sorted order.
func (s *Store) ConnectedNames() []string {
	return s.Keys(SectionAPITools, SectionConnected)
}

// Resource decodes the declaration of name. The boolean is false when the
// name is absent or declared as null; an error means it is declared but
// malformed.
func (s *Store) Resource(name string) (ResourceConfig, bool, error) {
	var rc ResourceConfig

	raw, ok := s.Get(SectionAPITools, SectionConnected, name)
	if !ok || raw == nil {
		return rc, false, nil
	}
	if err := Decode(raw, &rc); err != nil {
		return rc, true, fmt.Errorf("decoding %s.%s[%q]: %w", SectionAPITools, SectionConnected, name, err)
	}
	return rc, true, nil
}

// RestDescriptors returns the REST endpoint descriptors. The section may be a
// list or a map keyed by controller name; maps are returned in sorted key
// order with Controller filled from the key.
func (s *Store) RestDescriptors() ([]RestDescriptor, error) {
	raw, ok := s.Get(SectionRest)
	if !ok || raw == nil {
		return nil, nil
	}

	switch section := raw.(type) {
	case []any:
		out := make([]RestDescriptor, 0, len(section))
		for i, item := range section {
			var d RestDescriptor
			if err := Decode(item, &d); err != nil {
				return nil, fmt.Errorf("decoding %s[%d]: %w", SectionRest, i, err)
			}
			out = append(out, d)
		}
		return out, nil
	case map[string]any:
		keys := make([]string, 0, len(section))
		for k := range section {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]RestDescriptor, 0, len(section))
		for _, k := range keys {
			var d RestDescriptor
			if err := Decode(section[k], &d); err != nil {
				return nil, fmt.Errorf("decoding %s[%q]: %w", SectionRest, k, err)
			}
			if d.Controller == "" {
				d.Controller = k
			}
			out = append(out, d)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%s must be a list or a map, got %T", SectionRest, raw)
	}
}

// RestDescriptorFor returns the first descriptor whose listener equals name.
func (s *Store) RestDescriptorFor(name string) (RestDescriptor, bool, error) {
	descriptors, err := s.RestDescriptors()
	if err != nil {
		return RestDescriptor{}, false, err
	}
	for _, d := range descriptors {
		if d.Listener == name {
			return d, true, nil
		}
	}
	return RestDescriptor{}, false, nil
}

// Decode copies a configuration value into out using mapstructure tags.
// Scalars are converted weakly so "10" and 10 both decode into an int.
func Decode(in any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}
