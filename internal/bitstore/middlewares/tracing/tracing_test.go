package tracing

import (
	"bytes"
	"io"
	"testing"

	"github.com/jdillenkofer/fixity/internal/bitstore"
	"github.com/jdillenkofer/fixity/internal/bitstore/filesystem"
	testutils "github.com/jdillenkofer/fixity/internal/testing"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestTracingMiddleware(t *testing.T) {
	testutils.SkipIfIntegration(t)
	inner, err := filesystem.New(t.TempDir())
	assert.Nil(t, err)
	store, err := New("FilesystemBitstreamStore", inner)
	assert.Nil(t, err)
	err = bitstore.Tester(store, []byte("traced bitstream"))
	assert.Nil(t, err)
}

func TestTracingMiddlewareRecordsReadSpanOnClose(t *testing.T) {
	testutils.SkipIfIntegration(t)
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	ctx := t.Context()
	inner, err := filesystem.New(t.TempDir())
	assert.Nil(t, err)
	store, err := New("fs", inner)
	assert.Nil(t, err)
	assert.Nil(t, store.Start(ctx))
	defer store.Stop(ctx)

	storageKey := bitstore.NewStorageKey()
	assert.Nil(t, store.PutBitstream(ctx, storageKey, bytes.NewReader([]byte("12345"))))
	reader, err := store.OpenForRead(ctx, storageKey)
	assert.Nil(t, err)
	_, err = io.ReadAll(reader)
	assert.Nil(t, err)
	assert.Nil(t, reader.Close())

	var names []string
	var bytesRead int64
	for _, span := range recorder.Ended() {
		names = append(names, span.Name())
		if span.Name() == "fs.OpenForRead" {
			for _, attr := range span.Attributes() {
				if attr.Key == "bitstore.bytes_read" {
					bytesRead = attr.Value.AsInt64()
				}
			}
		}
	}
	assert.Contains(t, names, "fs.Start")
	assert.Contains(t, names, "fs.PutBitstream")
	assert.Contains(t, names, "fs.OpenForRead")
	assert.Equal(t, int64(5), bytesRead)
}
