package storage

import (
	"context"
	"fmt"
	"io"
)

type Object struct {
	Name string
	Size int64
}

// Provider is the scratch area used while a tiling run is in flight. Keys are
// slash separated and every object written is readable immediately afterwards.
type Provider interface {
	PutObject(ctx context.Context, key string, data io.Reader) error

	GetObject(ctx context.Context, key string) ([]byte, error)

	// DeleteObject succeeds when the object is already gone.
	DeleteObject(ctx context.Context, key string) error

	ListObjects(ctx context.Context, prefix string) ([]Object, error)
}

type providerType string

const (
	LocalProviderType providerType = "local"
	S3ProviderType    providerType = "s3"
)

func ToProviderType(typeString string) (providerType, error) {
	switch typeString {
	case string(LocalProviderType):
		return LocalProviderType, nil
	case string(S3ProviderType):
		return S3ProviderType, nil
	}
	return "", fmt.Errorf("unknown scratch backend: %s", typeString)
}
