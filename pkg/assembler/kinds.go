package assembler

import (
	"github.com/getmockd/restwire/pkg/event"
	"github.com/getmockd/restwire/pkg/hydrator"
	"github.com/getmockd/restwire/pkg/query"
	"github.com/getmockd/restwire/pkg/registry"
	"github.com/getmockd/restwire/pkg/resource"
)

// Component kinds looked up during assembly.
var (
	Resources          = registry.NewKind[resource.Resource]("resource")
	QueryProviders     = registry.NewKind[query.Provider]("query_provider")
	QueryCreateFilters = registry.NewKind[query.CreateFilter]("query_create_filter")
	Hydrators          = registry.NewKind[hydrator.Hydrator]("hydrator")
	Listeners          = registry.NewKind[event.Listener]("listener")
)

// DefaultResourceClass is the resource type used when a declaration names no
// class and no resource type is registered under the logical name.
const DefaultResourceClass = "connected"
