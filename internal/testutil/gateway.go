// Package testutil provides fakes shared by package tests.
package testutil

import (
	"context"
	"io"
	"sync"

	"github.com/ashureev/docdesk/internal/gateway"
)

// IngestCall records one Ingest invocation.
type IngestCall struct {
	Filename    string
	ContentType string
	Data        []byte
}

// FakeGateway is an in-memory gateway. Hook functions, when set, replace the
// default behavior of the matching operation; defaults succeed against the
// in-memory document list.
type FakeGateway struct {
	mu        sync.Mutex
	documents []string
	ingests   []IngestCall
	lists     int
	deletes   []string
	queries   []string

	IngestFn func(ctx context.Context, filename string) error
	ListFn   func(ctx context.Context) ([]string, error)
	DeleteFn func(ctx context.Context, name string) error
	QueryFn  func(ctx context.Context, query string) (gateway.QueryResponse, error)
}

// NewFakeGateway creates a fake holding the given documents.
func NewFakeGateway(documents ...string) *FakeGateway {
	return &FakeGateway{documents: append([]string{}, documents...)}
}

// SetDocuments replaces the list returned by default ListDocuments calls.
func (f *FakeGateway) SetDocuments(documents ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.documents = append([]string{}, documents...)
}

// Ingest records the call and appends the filename to the document list.
func (f *FakeGateway) Ingest(ctx context.Context, filename, contentType string, content io.Reader) error {
	data, err := io.ReadAll(content)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.ingests = append(f.ingests, IngestCall{Filename: filename, ContentType: contentType, Data: data})
	fn := f.IngestFn
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, filename)
	}
	f.mu.Lock()
	f.documents = append(f.documents, filename)
	f.mu.Unlock()
	return nil
}

// ListDocuments returns the current document list.
func (f *FakeGateway) ListDocuments(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	f.lists++
	fn := f.ListFn
	docs := append([]string{}, f.documents...)
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}
	return docs, nil
}

// DeleteDocument removes every entry named name.
func (f *FakeGateway) DeleteDocument(ctx context.Context, name string) error {
	f.mu.Lock()
	f.deletes = append(f.deletes, name)
	fn := f.DeleteFn
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, name)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.documents[:0]
	for _, d := range f.documents {
		if d != name {
			kept = append(kept, d)
		}
	}
	f.documents = kept
	return nil
}

// Query answers with QueryFn or an empty response.
func (f *FakeGateway) Query(ctx context.Context, query string) (gateway.QueryResponse, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	fn := f.QueryFn
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, query)
	}
	return gateway.QueryResponse{}, nil
}

// Ingests returns the recorded Ingest calls.
func (f *FakeGateway) Ingests() []IngestCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]IngestCall{}, f.ingests...)
}

// ListCalls returns how many times ListDocuments was called.
func (f *FakeGateway) ListCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lists
}

// Deletes returns the names passed to DeleteDocument.
func (f *FakeGateway) Deletes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.deletes...)
}

// Queries returns the texts passed to Query.
func (f *FakeGateway) Queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.queries...)
}
