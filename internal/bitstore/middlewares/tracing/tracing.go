package tracing

import (
	"context"
	"io"

	"github.com/jdillenkofer/fixity/internal/bitstore"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type tracingMiddleware struct {
	name   string
	tracer trace.Tracer
	inner  bitstore.BitstreamStore
}

var _ bitstore.BitstreamStore = (*tracingMiddleware)(nil)

// New wraps every store operation in a span named after the store.
func New(name string, inner bitstore.BitstreamStore) (bitstore.BitstreamStore, error) {
	return &tracingMiddleware{
		name:   name,
		tracer: otel.Tracer("internal/bitstore/middlewares/tracing"),
		inner:  inner,
	}, nil
}

func (mw *tracingMiddleware) startSpan(ctx context.Context, operation string, storageKey string) (context.Context, trace.Span) {
	attributes := []attribute.KeyValue{attribute.String("bitstore.name", mw.name)}
	if storageKey != "" {
		attributes = append(attributes, attribute.String("bitstore.storage_key", storageKey))
	}
	return mw.tracer.Start(ctx, mw.name+"."+operation, trace.WithAttributes(attributes...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (mw *tracingMiddleware) Start(ctx context.Context) error {
	ctx, span := mw.startSpan(ctx, "Start", "")
	err := mw.inner.Start(ctx)
	endSpan(span, err)
	return err
}

func (mw *tracingMiddleware) Stop(ctx context.Context) error {
	ctx, span := mw.startSpan(ctx, "Stop", "")
	err := mw.inner.Stop(ctx)
	endSpan(span, err)
	return err
}

func (mw *tracingMiddleware) PutBitstream(ctx context.Context, storageKey string, reader io.Reader) error {
	ctx, span := mw.startSpan(ctx, "PutBitstream", storageKey)
	err := mw.inner.PutBitstream(ctx, storageKey, reader)
	endSpan(span, err)
	return err
}

// OpenForRead keeps the span open until the returned reader is closed.
func (mw *tracingMiddleware) OpenForRead(ctx context.Context, storageKey string) (io.ReadCloser, error) {
	ctx, span := mw.startSpan(ctx, "OpenForRead", storageKey)
	rc, err := mw.inner.OpenForRead(ctx, storageKey)
	if err != nil {
		endSpan(span, err)
		return nil, err
	}
	return &spanReadCloser{ReadCloser: rc, span: span}, nil
}

type spanReadCloser struct {
	io.ReadCloser
	span  trace.Span
	bytes int64
}

func (s *spanReadCloser) Read(p []byte) (int, error) {
	n, err := s.ReadCloser.Read(p)
	s.bytes += int64(n)
	return n, err
}

func (s *spanReadCloser) Close() error {
	err := s.ReadCloser.Close()
	s.span.SetAttributes(attribute.Int64("bitstore.bytes_read", s.bytes))
	endSpan(s.span, err)
	return err
}

func (mw *tracingMiddleware) DeleteBitstream(ctx context.Context, storageKey string) error {
	ctx, span := mw.startSpan(ctx, "DeleteBitstream", storageKey)
	err := mw.inner.DeleteBitstream(ctx, storageKey)
	endSpan(span, err)
	return err
}
