package gatt

import (
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Registry holds the registered services in registration order together with an
// index from characteristic definitions to their owning service.
type Registry struct {
	services *orderedmap.OrderedMap[UUID, ServiceHandler]
	index    map[*Characteristic]UUID
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		services: orderedmap.New[UUID, ServiceHandler](),
		index:    make(map[*Characteristic]UUID),
	}
}

// Register adds a service handler. Service UUIDs must be unique.
func (r *Registry) Register(h ServiceHandler) error {
	svc := h.Service()
	if svc == nil {
		return fmt.Errorf("service handler %T has no service definition", h)
	}
	if _, exists := r.services.Get(svc.UUID); exists {
		return fmt.Errorf("service %s is already registered", svc.UUID)
	}

	r.services.Set(svc.UUID, h)
	for _, c := range svc.Characteristics() {
		r.index[c] = svc.UUID
	}
	return nil
}

// Handlers returns the registered handlers in registration order.
func (r *Registry) Handlers() []ServiceHandler {
	handlers := make([]ServiceHandler, 0, r.services.Len())
	for pair := r.services.Oldest(); pair != nil; pair = pair.Next() {
		handlers = append(handlers, pair.Value)
	}
	return handlers
}

// Services returns the registered service definitions in registration order.
func (r *Registry) Services() []*Service {
	services := make([]*Service, 0, r.services.Len())
	for pair := r.services.Oldest(); pair != nil; pair = pair.Next() {
		services = append(services, pair.Value.Service())
	}
	return services
}

// Handler returns the handler registered for a service UUID.
func (r *Registry) Handler(uuid UUID) (ServiceHandler, bool) {
	return r.services.Get(uuid)
}

// Characteristic looks a characteristic up by service and characteristic UUID.
func (r *Registry) Characteristic(service, char UUID) *Characteristic {
	h, ok := r.services.Get(service)
	if !ok {
		return nil
	}
	return h.Service().Characteristic(char)
}

// resolve finds the handler owning char.
// An unknown characteristic is an Unsupported error; an indexed characteristic
// whose service is missing is an Internal error.
func (r *Registry) resolve(char *Characteristic) (ServiceHandler, error) {
	if char == nil {
		return nil, Errorf(KindUnsupported, "no characteristic")
	}
	svcUUID, ok := r.index[char]
	if !ok {
		return nil, Errorf(KindUnsupported, "characteristic %s is not registered", char.UUID)
	}
	h, ok := r.services.Get(svcUUID)
	if !ok {
		return nil, Errorf(KindInternal, "characteristic %s indexed to unregistered service %s", char.UUID, svcUUID)
	}
	return h, nil
}
