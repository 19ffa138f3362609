package syscall

import (
	"sync"

	"nucleus/kerr"
	"nucleus/kobj"
)

// ServiceRegistry implements the "Service / subscribe" pattern from the
// glossary: one task registers a named endpoint, and others obtain a
// connected channel to it by name, without the two sides needing any
// other way to find each other. Names are compared byte for byte.
// ValidateUserString (validate.go) rejects every syscall string argument
// that is not already in NFC, so each name that reaches the registry is
// in that one normal form; a name spelled in another normal form fails
// with InvalidArgument instead of resolving to the service.
type ServiceRegistry struct {
	mu     sync.Mutex
	byName map[string]kobj.Id
}

// NewServiceRegistry returns an empty registry.
func NewServiceRegistry() *ServiceRegistry {
	return &ServiceRegistry{byName: make(map[string]kobj.Id)}
}

// Register binds name to id. Re-registering an already-bound name fails
// SpaceAlreadyOccupied rather than silently replacing the previous
// binding.
func (s *ServiceRegistry) Register(name string, id kobj.Id) *kerr.Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byName[name]; exists {
		return kerr.New("syscall", kerr.SpaceAlreadyOccupied, "service name already registered")
	}
	s.byName[name] = id
	return nil
}

// Lookup returns the Id registered under name, or ObjectDoesNotExist if
// nothing is registered under it.
func (s *ServiceRegistry) Lookup(name string) (kobj.Id, *kerr.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byName[name]
	if !ok {
		return kobj.Id{}, kerr.New("syscall", kerr.ObjectDoesNotExist, "no service registered under this name")
	}
	return id, nil
}
