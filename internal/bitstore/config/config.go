package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jdillenkofer/fixity/internal/bitstore"
	"github.com/jdillenkofer/fixity/internal/bitstore/filesystem"
	"github.com/jdillenkofer/fixity/internal/bitstore/middlewares/encryption"
	"github.com/jdillenkofer/fixity/internal/bitstore/middlewares/tracing"
	s3BitstreamStore "github.com/jdillenkofer/fixity/internal/bitstore/s3"
	"github.com/jdillenkofer/fixity/internal/bitstore/sftp"
	sqlBitstreamStore "github.com/jdillenkofer/fixity/internal/bitstore/sql"
	internalConfig "github.com/jdillenkofer/fixity/internal/config"
	"github.com/jdillenkofer/fixity/internal/database"
	repositoryFactory "github.com/jdillenkofer/fixity/internal/database/repository"
	"github.com/jdillenkofer/fixity/internal/dependencyinjection"
)

const (
	filesystemBitstreamStoreType               = "FilesystemBitstreamStore"
	sqlBitstreamStoreType                      = "SqlBitstreamStore"
	sftpBitstreamStoreType                     = "SftpBitstreamStore"
	s3BitstreamStoreType                       = "S3BitstreamStore"
	tinkEncryptionBitstreamStoreMiddlewareType = "TinkEncryptionBitstreamStoreMiddleware"
	tracingBitstreamStoreMiddlewareType        = "TracingBitstreamStoreMiddleware"
)

var ErrUnknownBitstreamStoreType = errors.New("unknown bitstreamStore type")

type BitstreamStoreInstantiator = internalConfig.DynamicJsonInstantiator[bitstore.BitstreamStore]

type FilesystemBitstreamStoreConfiguration struct {
	Root internalConfig.StringProvider `json:"root"`
	internalConfig.DynamicJsonType
}

func (f *FilesystemBitstreamStoreConfiguration) RegisterReferences(diCollection dependencyinjection.DICollection) error {
	return nil
}

func (f *FilesystemBitstreamStoreConfiguration) Instantiate(diProvider dependencyinjection.DIProvider) (bitstore.BitstreamStore, error) {
	return filesystem.New(f.Root.Value())
}

// SqlBitstreamStoreConfiguration stores bytes in the database registered in the DI container.
type SqlBitstreamStoreConfiguration struct {
	internalConfig.DynamicJsonType
}

func (s *SqlBitstreamStoreConfiguration) RegisterReferences(diCollection dependencyinjection.DICollection) error {
	return nil
}

func (s *SqlBitstreamStoreConfiguration) Instantiate(diProvider dependencyinjection.DIProvider) (bitstore.BitstreamStore, error) {
	db, err := dependencyinjection.LookupByTypeOf[database.Database](diProvider)
	if err != nil {
		return nil, fmt.Errorf("SqlBitstreamStore needs a database: %w", err)
	}
	bitstreamContentRepository, err := repositoryFactory.NewBitstreamContentRepository(db)
	if err != nil {
		return nil, err
	}
	return sqlBitstreamStore.New(db, bitstreamContentRepository)
}

type SftpBitstreamStoreConfiguration struct {
	Addr            internalConfig.StringProvider `json:"addr"`
	SshClientConfig SshClientConfigConfiguration  `json:"sshClientConfig"`
	Root            internalConfig.StringProvider `json:"root"`
	internalConfig.DynamicJsonType
}

func (s *SftpBitstreamStoreConfiguration) RegisterReferences(diCollection dependencyinjection.DICollection) error {
	return nil
}

func (s *SftpBitstreamStoreConfiguration) Instantiate(diProvider dependencyinjection.DIProvider) (bitstore.BitstreamStore, error) {
	sshClientConfig, err := s.SshClientConfig.Instantiate()
	if err != nil {
		return nil, err
	}
	return sftp.New(s.Addr.Value(), sshClientConfig, s.Root.Value())
}

type S3BitstreamStoreConfiguration struct {
	Endpoint        internalConfig.StringProvider `json:"endpoint"`
	Region          internalConfig.StringProvider `json:"region"`
	AccessKeyId     internalConfig.StringProvider `json:"accessKeyId"`
	SecretAccessKey internalConfig.StringProvider `json:"secretAccessKey"`
	Bucket          internalConfig.StringProvider `json:"bucket"`
	Prefix          internalConfig.StringProvider `json:"prefix"`
	UsePathStyle    bool                          `json:"usePathStyle"`
	internalConfig.DynamicJsonType
}

func (s *S3BitstreamStoreConfiguration) RegisterReferences(diCollection dependencyinjection.DICollection) error {
	return nil
}

func (s *S3BitstreamStoreConfiguration) Instantiate(diProvider dependencyinjection.DIProvider) (bitstore.BitstreamStore, error) {
	if s.Bucket.Value() == "" {
		return nil, errors.New("bucket is required for S3BitstreamStore")
	}
	client, err := s3BitstreamStore.NewClient(context.Background(), s.Endpoint.Value(), s.Region.Value(), s.AccessKeyId.Value(), s.SecretAccessKey.Value(), s.UsePathStyle)
	if err != nil {
		return nil, err
	}
	return s3BitstreamStore.New(client, s.Bucket.Value(), s.Prefix.Value())
}

type TinkEncryptionBitstreamStoreMiddlewareConfiguration struct {
	KMSType                         internalConfig.StringProvider `json:"kmsType"`
	Password                        internalConfig.StringProvider `json:"password"`
	InnerBitstreamStoreInstantiator BitstreamStoreInstantiator    `json:"-"`
	RawInnerBitstreamStore          json.RawMessage               `json:"innerBitstreamStore"`
	internalConfig.DynamicJsonType
}

func (t *TinkEncryptionBitstreamStoreMiddlewareConfiguration) UnmarshalJSON(b []byte) error {
	type tinkEncryptionBitstreamStoreMiddlewareConfiguration TinkEncryptionBitstreamStoreMiddlewareConfiguration
	err := json.Unmarshal(b, (*tinkEncryptionBitstreamStoreMiddlewareConfiguration)(t))
	if err != nil {
		return err
	}
	t.InnerBitstreamStoreInstantiator, err = CreateBitstreamStoreInstantiatorFromJson(t.RawInnerBitstreamStore)
	if err != nil {
		return err
	}
	return nil
}

func (t *TinkEncryptionBitstreamStoreMiddlewareConfiguration) RegisterReferences(diCollection dependencyinjection.DICollection) error {
	return t.InnerBitstreamStoreInstantiator.RegisterReferences(diCollection)
}

func (t *TinkEncryptionBitstreamStoreMiddlewareConfiguration) Instantiate(diProvider dependencyinjection.DIProvider) (bitstore.BitstreamStore, error) {
	kmsType := t.KMSType.Value()
	if kmsType != "" && kmsType != encryption.KeyTypeLocal {
		return nil, fmt.Errorf("unsupported KMS type: %s", kmsType)
	}
	innerBitstreamStore, err := t.InnerBitstreamStoreInstantiator.Instantiate(diProvider)
	if err != nil {
		return nil, err
	}
	return encryption.NewWithLocalKMS(t.Password.Value(), innerBitstreamStore)
}

type TracingBitstreamStoreMiddlewareConfiguration struct {
	Name                            internalConfig.StringProvider `json:"name"`
	InnerBitstreamStoreInstantiator BitstreamStoreInstantiator    `json:"-"`
	RawInnerBitstreamStore          json.RawMessage               `json:"innerBitstreamStore"`
	internalConfig.DynamicJsonType
}

func (t *TracingBitstreamStoreMiddlewareConfiguration) UnmarshalJSON(b []byte) error {
	type tracingBitstreamStoreMiddlewareConfiguration TracingBitstreamStoreMiddlewareConfiguration
	err := json.Unmarshal(b, (*tracingBitstreamStoreMiddlewareConfiguration)(t))
	if err != nil {
		return err
	}
	t.InnerBitstreamStoreInstantiator, err = CreateBitstreamStoreInstantiatorFromJson(t.RawInnerBitstreamStore)
	if err != nil {
		return err
	}
	return nil
}

func (t *TracingBitstreamStoreMiddlewareConfiguration) RegisterReferences(diCollection dependencyinjection.DICollection) error {
	return t.InnerBitstreamStoreInstantiator.RegisterReferences(diCollection)
}

func (t *TracingBitstreamStoreMiddlewareConfiguration) Instantiate(diProvider dependencyinjection.DIProvider) (bitstore.BitstreamStore, error) {
	innerBitstreamStore, err := t.InnerBitstreamStoreInstantiator.Instantiate(diProvider)
	if err != nil {
		return nil, err
	}
	name := t.Name.Value()
	if name == "" {
		name = "BitstreamStore"
	}
	return tracing.New(name, innerBitstreamStore)
}

func CreateBitstreamStoreInstantiatorFromJson(b []byte) (BitstreamStoreInstantiator, error) {
	var bc internalConfig.DynamicJsonType
	err := json.Unmarshal(b, &bc)
	if err != nil {
		return nil, err
	}

	var bi BitstreamStoreInstantiator
	switch bc.Type {
	case filesystemBitstreamStoreType:
		bi = &FilesystemBitstreamStoreConfiguration{}
	case sqlBitstreamStoreType:
		bi = &SqlBitstreamStoreConfiguration{}
	case sftpBitstreamStoreType:
		bi = &SftpBitstreamStoreConfiguration{}
	case s3BitstreamStoreType:
		bi = &S3BitstreamStoreConfiguration{}
	case tinkEncryptionBitstreamStoreMiddlewareType:
		bi = &TinkEncryptionBitstreamStoreMiddlewareConfiguration{}
	case tracingBitstreamStoreMiddlewareType:
		bi = &TracingBitstreamStoreMiddlewareConfiguration{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBitstreamStoreType, bc.Type)
	}
	err = json.Unmarshal(b, &bi)
	if err != nil {
		return nil, err
	}
	return bi, nil
}

// CreateBitstreamStoreFromJson instantiates the configured store graph.
// The database, when one is needed, must already be registered in diContainer.
func CreateBitstreamStoreFromJson(diContainer dependencyinjection.DIContainer, b []byte) (bitstore.BitstreamStore, error) {
	bi, err := CreateBitstreamStoreInstantiatorFromJson(b)
	if err != nil {
		return nil, err
	}
	err = bi.RegisterReferences(diContainer)
	if err != nil {
		return nil, err
	}
	return bi.Instantiate(diContainer)
}
