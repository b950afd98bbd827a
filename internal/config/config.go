package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/jdillenkofer/fixity/internal/dependencyinjection"
)

const envKeyType = "EnvKey"

var ErrInvalidProvider = errors.New("invalid provider")

type DynamicJsonType struct {
	Type string `json:"type"`
}

type DynamicJsonInstantiator[T any] interface {
	RegisterReferences(diCollection dependencyinjection.DICollection) error
	Instantiate(diProvider dependencyinjection.DIProvider) (T, error)
}

type envKeyReference struct {
	EnvKey string `json:"envKey"`
	DynamicJsonType
}

// StringProvider is either a json string or an {"type":"EnvKey"} object
// that is resolved when the configuration is unmarshalled.
type StringProvider struct {
	value string
}

func NewStringProvider(value string) StringProvider {
	return StringProvider{value: value}
}

func (s *StringProvider) UnmarshalJSON(b []byte) error {
	var literal string
	if err := json.Unmarshal(b, &literal); err == nil {
		s.value = literal
		return nil
	}
	value, err := lookupEnvKey(b)
	if err != nil {
		return err
	}
	s.value = value
	return nil
}

func (s StringProvider) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.value)
}

func (s StringProvider) Value() string {
	return s.value
}

type Int64Provider struct {
	value int64
}

func NewInt64Provider(value int64) Int64Provider {
	return Int64Provider{value: value}
}

func (i *Int64Provider) UnmarshalJSON(b []byte) error {
	var literal int64
	if err := json.Unmarshal(b, &literal); err == nil {
		i.value = literal
		return nil
	}
	value, err := lookupEnvKey(b)
	if err != nil {
		return err
	}
	i.value, err = strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidProvider, err)
	}
	return nil
}

func (i Int64Provider) MarshalJSON() ([]byte, error) {
	return json.Marshal(i.value)
}

func (i Int64Provider) Value() int64 {
	return i.value
}

func lookupEnvKey(b []byte) (string, error) {
	var ref envKeyReference
	err := json.Unmarshal(b, &ref)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidProvider, err)
	}
	if ref.Type != envKeyType || ref.EnvKey == "" {
		return "", fmt.Errorf("%w: expected type %s with an envKey", ErrInvalidProvider, envKeyType)
	}
	return os.Getenv(ref.EnvKey), nil
}

// Duration accepts either nanoseconds or a time.ParseDuration string.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
		return nil
	case string:
		tmp, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		*d = Duration(tmp)
		return nil
	default:
		return errors.New("invalid duration")
	}
}

func CreateTempDir() (*string, func(), error) {
	tempDir, err := os.MkdirTemp("", "fixity-test-data-")
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		os.RemoveAll(tempDir)
	}
	return &tempDir, cleanup, nil
}
