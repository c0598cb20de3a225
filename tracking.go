package gpatx

import "reflect"

// EntitySet tracks entity instances for a session. Pointers are tracked by
// address. Values that cannot be used as map keys, such as structs holding
// slices or maps, are never tracked. A nil set tracks nothing.
type EntitySet struct {
	entities map[interface{}]struct{}
}

// NewEntitySet creates an empty set
func NewEntitySet() *EntitySet {
	return &EntitySet{entities: make(map[interface{}]struct{})}
}

// Add starts tracking entity
func (s *EntitySet) Add(entity interface{}) {
	if s == nil || !trackable(entity) {
		return
	}
	s.entities[entity] = struct{}{}
}

// Contains reports whether entity is tracked
func (s *EntitySet) Contains(entity interface{}) bool {
	if s == nil || !trackable(entity) {
		return false
	}
	_, ok := s.entities[entity]
	return ok
}

// Remove stops tracking entity
func (s *EntitySet) Remove(entity interface{}) {
	if s == nil || !trackable(entity) {
		return
	}
	delete(s.entities, entity)
}

// Len returns the number of tracked entities
func (s *EntitySet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entities)
}

func trackable(entity interface{}) bool {
	if entity == nil {
		return false
	}
	return reflect.ValueOf(entity).Comparable()
}
