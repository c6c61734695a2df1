// services/service.go
package services

import (
	"context"
	"time"

	"github.com/gewnthar/registers/database"
	"github.com/gewnthar/registers/github"
	"github.com/gewnthar/registers/models"
)

// FileStore is the remote repository CSV snapshots are pushed to.
type FileStore interface {
	GetFile(ctx context.Context, path string) (*github.File, error)
	PutFile(ctx context.Context, path string, content []byte, sha, message string) error
}

// SpecificationSource returns dataset definitions with their fields.
type SpecificationSource interface {
	Dataset(ctx context.Context, id string) (*models.Dataset, error)
}

// Service runs every register operation against the store. Each mutating
// call runs in its own transaction.
type Service struct {
	store *database.Store
	now   func() time.Time

	files         FileStore
	registersPath string
	spec          SpecificationSource
}

type Option func(*Service)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithFileStore enables Push to the given repository directory.
func WithFileStore(files FileStore, registersPath string) Option {
	return func(s *Service) {
		s.files = files
		s.registersPath = registersPath
	}
}

// WithSpecification enables LoadSpecification.
func WithSpecification(spec SpecificationSource) Option {
	return func(s *Service) { s.spec = spec }
}

func New(store *database.Store, opts ...Option) *Service {
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store exposes the underlying repository, e.g. for health checks.
func (s *Service) Store() *database.Store {
	return s.store
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}
