package dependencyinjection

import (
	"errors"
	"reflect"
)

var ErrNoSuchType = errors.New("no such registered type")
var ErrTypeAlreadyRegistered = errors.New("type already registered")
var ErrNoSuchName = errors.New("no such registered name")
var ErrNameAlreadyRegistered = errors.New("name already registered")

type DIProvider interface {
	LookupByType(t reflect.Type) (any, error)
	LookupByName(name string) (any, error)
}

type DICollection interface {
	RegisterSingletonByType(t reflect.Type, obj any) error
	RegisterSingletonByName(name string, obj any) error
}

type DIContainer interface {
	DICollection
	DIProvider
}

func NewContainer() (DIContainer, error) {
	return &diContainer{
		mapOfTypeToObject: make(map[reflect.Type]any),
		mapOfNameToObject: make(map[string]any),
	}, nil
}

type diContainer struct {
	mapOfTypeToObject map[reflect.Type]any
	mapOfNameToObject map[string]any
}

func (diContainer *diContainer) LookupByType(t reflect.Type) (any, error) {
	obj, ok := diContainer.mapOfTypeToObject[t]
	if !ok {
		return nil, ErrNoSuchType
	}
	return obj, nil
}

func (diContainer *diContainer) RegisterSingletonByType(t reflect.Type, obj any) error {
	_, ok := diContainer.mapOfTypeToObject[t]
	if ok {
		return ErrTypeAlreadyRegistered
	}
	diContainer.mapOfTypeToObject[t] = obj
	return nil
}

func (diContainer *diContainer) LookupByName(name string) (any, error) {
	obj, ok := diContainer.mapOfNameToObject[name]
	if !ok {
		return nil, ErrNoSuchName
	}
	return obj, nil
}

func (diContainer *diContainer) RegisterSingletonByName(name string, obj any) error {
	_, ok := diContainer.mapOfNameToObject[name]
	if ok {
		return ErrNameAlreadyRegistered
	}
	diContainer.mapOfNameToObject[name] = obj
	return nil
}

// LookupByTypeOf looks up the singleton registered for the static type T.
func LookupByTypeOf[T any](diProvider DIProvider) (T, error) {
	var zero T
	obj, err := diProvider.LookupByType(reflect.TypeOf((*T)(nil)).Elem())
	if err != nil {
		return zero, err
	}
	typed, ok := obj.(T)
	if !ok {
		return zero, ErrNoSuchType
	}
	return typed, nil
}

// RegisterByTypeOf registers obj as the singleton for the static type T.
func RegisterByTypeOf[T any](diCollection DICollection, obj T) error {
	return diCollection.RegisterSingletonByType(reflect.TypeOf((*T)(nil)).Elem(), obj)
}
