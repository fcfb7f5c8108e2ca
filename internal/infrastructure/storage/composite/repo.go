package composite

import (
	"context"

	"spotarb/internal/application/port"
	"spotarb/internal/domain/model"
)

// Repo fans writes out to every configured backend. Reads go to the first
// backend that has an answer.
type Repo struct {
	repos []port.Repository
}

func New(repos ...port.Repository) *Repo {
	// nil repos are allowed; filter in constructor for safety
	out := make([]port.Repository, 0, len(repos))
	for _, r := range repos {
		if r != nil {
			out = append(out, r)
		}
	}
	return &Repo{repos: out}
}

func (r *Repo) SaveSignal(ctx context.Context, sig *model.Signal) error {
	var firstErr error
	for _, repo := range r.repos {
		if err := repo.SaveSignal(ctx, sig); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Repo) LatestSignal(ctx context.Context, symbol string) (*model.Signal, error) {
	var firstErr error
	for _, repo := range r.repos {
		sig, err := repo.LatestSignal(ctx, symbol)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if sig != nil {
			return sig, nil
		}
	}
	return nil, firstErr
}

func (r *Repo) SaveTrade(ctx context.Context, rec *port.TradeRecord) error {
	var firstErr error
	for _, repo := range r.repos {
		if err := repo.SaveTrade(ctx, rec); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Repo) Close() error {
	var firstErr error
	for _, repo := range r.repos {
		if err := repo.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var _ port.Repository = (*Repo)(nil)
