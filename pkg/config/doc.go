// Package config provides the read-only configuration store used to wire
// connected REST resources.
//
// Configuration is a nested key/value tree merged from one or more YAML or
// JSON files. Files are merged in the order given (glob matches are sorted):
// maps merge recursively, lists append and scalars from later files replace
// earlier ones.
//
// The tree carries two sections the assembler cares about:
//
//	api-tools:
//	  doctrine-connected:
//	    Widgets\V1\Rest\Widget\WidgetResource:
//	      object_manager: orm.default
//	      hydrator: widget_hydrator
//	      query_providers:
//	        fetch_all: owner_scoped
//	      query_create_filter: default
//	      listeners: [audit]
//	api-tools-rest:
//	  Widgets\V1\Rest\Widget\Controller:
//	    listener: Widgets\V1\Rest\Widget\WidgetResource
//	    entity_identifier_name: id
//	    entity_class: widgets
//
// Logical names are case-sensitive and may contain dots or backslashes, so
// values are addressed by path segments rather than dotted keys:
//
//	store, err := config.Load("config/autoload/*.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	om := store.String("api-tools", "doctrine-connected", name, "object_manager")
//
// The store is immutable after Load; every accessor returns copies or scalar
// values, so it is safe for concurrent use.
package config
