// Package tutorials holds the tutorial use cases. It decides which pool
// each operation runs on; the repository underneath does not know about
// routing at all.
package tutorials

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/saltyorg/routedb/internal/database"
	"github.com/saltyorg/routedb/internal/dbrouter"
)

// MaxTitleLength is the longest title accepted, in characters
const MaxTitleLength = 255

var (
	// ErrValidation is wrapped by every input validation failure
	ErrValidation = errors.New("validation failed")
	// ErrNotFound is returned when a tutorial does not exist
	ErrNotFound = database.ErrNotFound
)

// Store is the tutorial repository
type Store interface {
	ListTutorials(ctx context.Context, filter database.TutorialFilter) ([]*database.Tutorial, error)
	GetTutorial(ctx context.Context, id int64) (*database.Tutorial, error)
	CountTutorials(ctx context.Context) (int, error)
	CreateTutorial(ctx context.Context, t *database.Tutorial) error
	UpdateTutorial(ctx context.Context, t *database.Tutorial) error
	PublishTutorial(ctx context.Context, id int64, at time.Time) error
	DeleteTutorial(ctx context.Context, id int64) error
}

// writes always go to the primary
var writes = dbrouter.On(dbrouter.Primary)

// Read operations that accept a method-level selector
const (
	OpList  = "List"
	OpGet   = "Get"
	OpCount = "Count"
)

// Service implements the tutorial use cases
type Service struct {
	store    Store
	selector *dbrouter.Selector
	methods  map[string]*dbrouter.Selector
	now      func() time.Time
}

// Option configures a Service
type Option func(*Service)

// WithSelector sets the selector used by reads. Without it reads inherit
// whatever the caller bound, or the registry default.
func WithSelector(sel *dbrouter.Selector) Option {
	return func(s *Service) {
		s.selector = sel
	}
}

// WithMethodSelector sets the selector for one read operation. It takes
// precedence over the type-level selector.
func WithMethodSelector(op string, sel *dbrouter.Selector) Option {
	return func(s *Service) {
		if s.methods == nil {
			s.methods = make(map[string]*dbrouter.Selector)
		}
		s.methods[op] = sel
	}
}

// WithClock overrides the time source used for publish timestamps
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New creates a tutorial service over store
func New(store Store, opts ...Option) *Service {
	s := &Service{
		store: store,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DBSelector returns the type-level selector
func (s *Service) DBSelector() *dbrouter.Selector {
	return s.selector
}

// reads returns the selector for a read operation: its method-level
// selector if one is set, else the type-level one.
func (s *Service) reads(op string) *dbrouter.Selector {
	return dbrouter.Pick(s.methods[op], dbrouter.Of(s))
}

// List returns tutorials matching filter
func (s *Service) List(ctx context.Context, filter database.TutorialFilter) ([]*database.Tutorial, error) {
	return dbrouter.Call(ctx, s.reads(OpList), func(ctx context.Context) ([]*database.Tutorial, error) {
		return s.store.ListTutorials(ctx, filter)
	})
}

// Get returns a tutorial by ID
func (s *Service) Get(ctx context.Context, id int64) (*database.Tutorial, error) {
	return dbrouter.Call(ctx, s.reads(OpGet), func(ctx context.Context) (*database.Tutorial, error) {
		t, err := s.store.GetTutorial(ctx, id)
		if err != nil {
			return nil, err
		}
		if t == nil {
			return nil, fmt.Errorf("tutorial %d: %w", id, ErrNotFound)
		}
		return t, nil
	})
}

// Count returns the number of tutorials
func (s *Service) Count(ctx context.Context) (int, error) {
	return dbrouter.Call(ctx, s.reads(OpCount), s.store.CountTutorials)
}

// Input carries the editable fields of a tutorial
type Input struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Published   bool   `json:"published"`
}

// Validate checks the input and normalizes whitespace in place
func (in *Input) Validate() error {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)

	if in.Title == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if utf8.RuneCountInString(in.Title) > MaxTitleLength {
		return fmt.Errorf("%w: title must be at most %d characters", ErrValidation, MaxTitleLength)
	}
	return nil
}

// Create stores a new tutorial on the primary
func (s *Service) Create(ctx context.Context, in Input) (*database.Tutorial, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	return dbrouter.Call(ctx, writes, func(ctx context.Context) (*database.Tutorial, error) {
		t := &database.Tutorial{
			Title:       in.Title,
			Description: in.Description,
			Published:   in.Published,
		}
		if err := s.store.CreateTutorial(ctx, t); err != nil {
			return nil, err
		}

		log.Info().Int64("id", t.ID).Str("title", t.Title).Msg("Tutorial created")
		return t, nil
	})
}

// Update replaces the title and description of a tutorial on the primary
func (s *Service) Update(ctx context.Context, id int64, in Input) (*database.Tutorial, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	return dbrouter.Call(ctx, writes, func(ctx context.Context) (*database.Tutorial, error) {
		t, err := s.store.GetTutorial(ctx, id)
		if err != nil {
			return nil, err
		}
		if t == nil {
			return nil, fmt.Errorf("tutorial %d: %w", id, ErrNotFound)
		}

		t.Title = in.Title
		t.Description = in.Description
		if err := s.store.UpdateTutorial(ctx, t); err != nil {
			return nil, err
		}

		log.Info().Int64("id", id).Msg("Tutorial updated")
		return t, nil
	})
}

// Publish marks a tutorial as published on the primary
func (s *Service) Publish(ctx context.Context, id int64) (*database.Tutorial, error) {
	return dbrouter.Call(ctx, writes, func(ctx context.Context) (*database.Tutorial, error) {
		if err := s.store.PublishTutorial(ctx, id, s.now()); err != nil {
			return nil, err
		}

		log.Info().Int64("id", id).Msg("Tutorial published")

		// Read back on the primary; the replica may lag behind.
		t, err := s.store.GetTutorial(ctx, id)
		if err != nil {
			return nil, err
		}
		if t == nil {
			return nil, fmt.Errorf("tutorial %d: %w", id, ErrNotFound)
		}
		return t, nil
	})
}

// Delete removes a tutorial on the primary
func (s *Service) Delete(ctx context.Context, id int64) error {
	return dbrouter.Run(ctx, writes, func(ctx context.Context) error {
		if err := s.store.DeleteTutorial(ctx, id); err != nil {
			return err
		}

		log.Info().Int64("id", id).Msg("Tutorial deleted")
		return nil
	})
}
