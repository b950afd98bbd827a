package lifecycle

import (
	"context"
	"errors"
	"sync/atomic"
)

var ErrAlreadyStarted = errors.New("already started")
var ErrNotStarted = errors.New("not started")
var ErrAlreadyStopped = errors.New("already stopped")

// Manager is implemented by every component with background resources.
type Manager interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// ValidatedLifecycle rejects out of order Start/Stop calls.
// Embed it in components that have no lifecycle work of their own
// or that delegate to wrapped components.
type ValidatedLifecycle struct {
	validator *StateValidator
}

func NewValidatedLifecycle(name string) (*ValidatedLifecycle, error) {
	validator, err := New(name)
	if err != nil {
		return nil, err
	}
	return &ValidatedLifecycle{validator: validator}, nil
}

func (vl *ValidatedLifecycle) Start(ctx context.Context) error {
	return vl.validator.Start()
}

func (vl *ValidatedLifecycle) Stop(ctx context.Context) error {
	return vl.validator.Stop()
}

func (vl *ValidatedLifecycle) IsRunning() bool {
	return vl.validator.IsRunning()
}

type StateValidator struct {
	isStarted atomic.Bool
	isStopped atomic.Bool
	name      string
}

func New(name string) (*StateValidator, error) {
	return &StateValidator{name: name}, nil
}

func (validator *StateValidator) Start() error {
	if !validator.isStarted.CompareAndSwap(false, true) {
		return errors.Join(ErrAlreadyStarted, errors.New(validator.name))
	}
	return nil
}

func (validator *StateValidator) Stop() error {
	if !validator.isStarted.Load() {
		return errors.Join(ErrNotStarted, errors.New(validator.name))
	}
	if !validator.isStopped.CompareAndSwap(false, true) {
		return errors.Join(ErrAlreadyStopped, errors.New(validator.name))
	}
	return nil
}

func (validator *StateValidator) IsRunning() bool {
	return validator.isStarted.Load() && !validator.isStopped.Load()
}
