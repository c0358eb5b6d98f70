package cli

import (
	"context"
	"fmt"

	"github.com/roach88/quarry/internal/backends"
	"github.com/roach88/quarry/internal/executor"
	"github.com/roach88/quarry/internal/model"
	"github.com/roach88/quarry/internal/query"
	"github.com/roach88/quarry/internal/schemafile"
)

// session is the state one command works with: the loaded models and, for
// commands that touch storage, an open executor.
type session struct {
	opts   *RootOptions
	models *model.Registry
	exec   executor.Executor
}

// loadModels reads the configured schema file.
func (o *RootOptions) loadModels() (*session, error) {
	reg := model.NewRegistry()
	if _, err := schemafile.Load(o.Config.Schema, reg); err != nil {
		return nil, commandError(ErrCodeSchema, err)
	}
	return &session{opts: o, models: reg}, nil
}

// openSession loads the models and opens the configured backend, creating
// storage for every model.
func (o *RootOptions) openSession(ctx context.Context) (*session, error) {
	s, err := o.loadModels()
	if err != nil {
		return nil, err
	}
	ex, err := o.backends.Open(ctx, o.Config.Backend, o.Config.Params())
	if err != nil {
		return nil, commandError(ErrCodeConfig, err)
	}
	if err := backends.Prepare(ctx, ex, s.models.Models()...); err != nil {
		ex.Close()
		return nil, err
	}
	o.logger.Debug("session opened", "backend", ex.Backend(), "models", s.models.Len())
	s.exec = ex
	return s, nil
}

func (s *session) model(name string) (*model.Schema, error) {
	m, ok := s.models.Lookup(name)
	if !ok {
		return nil, commandError(ErrCodeUsage, fmt.Errorf("unknown model %q", name))
	}
	return m, nil
}

func (s *session) collection(name string) (*query.Collection, error) {
	m, err := s.model(name)
	if err != nil {
		return nil, err
	}
	return query.NewCollection(m, s.exec, query.WithLogger(s.opts.logger)), nil
}

func (s *session) Close() error {
	if s.exec == nil {
		return nil
	}
	return s.exec.Close()
}
