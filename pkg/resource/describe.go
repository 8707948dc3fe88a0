package resource

import (
	"fmt"
)

// Description summarises how a resource was wired.
type Description struct {
	Name                 string            `json:"name" yaml:"name"`
	EntityClass          string            `json:"entityClass" yaml:"entityClass"`
	EntityIdentifierName string            `json:"entityIdentifierName,omitempty" yaml:"entityIdentifierName,omitempty"`
	ObjectManager        string            `json:"objectManager" yaml:"objectManager"`
	Hydrator             string            `json:"hydrator,omitempty" yaml:"hydrator,omitempty"`
	QueryProviders       map[string]string `json:"queryProviders" yaml:"queryProviders"`
	QueryCreateFilter    string            `json:"queryCreateFilter,omitempty" yaml:"queryCreateFilter,omitempty"`
	Authorized           bool              `json:"authorized" yaml:"authorized"`
	Listeners            int               `json:"listeners" yaml:"listeners"`
}

// Describe reports the collaborators injected into r. Types are rendered with
// %T, so a provider shows up as e.g. "*query.DefaultORM".
func Describe(r Resource) Description {
	d := Description{
		Name:                 r.Name(),
		EntityClass:          r.EntityClass(),
		EntityIdentifierName: r.EntityIdentifierName(),
		ObjectManager:        typeName(r.ObjectManager()),
		Hydrator:             typeName(r.Hydrator()),
		QueryProviders:       make(map[string]string),
		QueryCreateFilter:    typeName(r.QueryCreateFilter()),
		Listeners:            len(r.Events().Listeners()),
	}
	for key, p := range r.QueryProviders() {
		d.QueryProviders[key] = typeName(p)
		if p.Authorizer() != nil {
			d.Authorized = true
		}
	}
	if f := r.QueryCreateFilter(); f != nil && f.Authorizer() != nil {
		d.Authorized = true
	}
	return d
}

func typeName(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%T", v)
}
