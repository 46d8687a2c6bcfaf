package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/devloghq/devlog/internal/model"
)

// projects are label-backed: a project is a devlog-project:<name> label and
// the project id is its name. Labels carry no timestamps, so createdAt is
// not tracked and lastAccessedAt reflects the read itself. Deletion enforces
// no emptiness constraint; orphaned entries keep their project label.
type projects struct{ s *Store }

type ghLabelBody struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Color       string `json:"color,omitempty"`
}

func (p projects) Create(ctx context.Context, in *model.Project) (*model.Project, error) {
	if in == nil || in.Name == "" {
		return nil, fmt.Errorf("github: project name required: %w", model.ErrValidation)
	}
	existing, err := p.lookup(ctx, in.Name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("github: project %q exists: %w", in.Name, model.ErrConflict)
	}

	body := ghLabelBody{
		Name:        projectLabelPrefix + in.Name,
		Description: in.Description,
		Color:       "0e8a16",
	}
	if err := p.s.api.do(ctx, http.MethodPost, p.s.repoPath("/labels"), body, nil); err != nil {
		return nil, fmt.Errorf("github: create project label: %w", err)
	}
	now := time.Now().UTC()
	return &model.Project{
		ID:             in.Name,
		Name:           in.Name,
		Description:    in.Description,
		CreatedAt:      now,
		LastAccessedAt: now,
	}, nil
}

func (p projects) Get(ctx context.Context, id string) (*model.Project, error) {
	return p.lookup(ctx, id)
}

func (p projects) GetByName(ctx context.Context, name string) (*model.Project, error) {
	return p.lookup(ctx, name)
}

func (p projects) lookup(ctx context.Context, name string) (*model.Project, error) {
	path := p.s.repoPath("/labels/" + url.PathEscape(projectLabelPrefix+name))
	var l ghLabel
	if err := p.s.api.do(ctx, http.MethodGet, path, nil, &l); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("github: get project %q: %w", name, err)
	}
	return labelToProject(l), nil
}

func (p projects) List(ctx context.Context) ([]*model.Project, error) {
	var out []*model.Project
	for page := 1; ; page++ {
		path := fmt.Sprintf("%s?per_page=%d&page=%d", p.s.repoPath("/labels"), issuesPerPage, page)
		var batch []ghLabel
		if err := p.s.api.do(ctx, http.MethodGet, path, nil, &batch); err != nil {
			return nil, fmt.Errorf("github: list projects: %w", err)
		}
		for _, l := range batch {
			if strings.HasPrefix(l.Name, projectLabelPrefix) {
				out = append(out, labelToProject(l))
			}
		}
		if len(batch) < issuesPerPage {
			return out, nil
		}
	}
}

func (p projects) Delete(ctx context.Context, id string) error {
	path := p.s.repoPath("/labels/" + url.PathEscape(projectLabelPrefix+id))
	if err := p.s.api.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return fmt.Errorf("github: project %s: %w", id, model.ErrNotFound)
		}
		return fmt.Errorf("github: delete project %s: %w", id, err)
	}
	p.s.cache.invalidate()
	return nil
}

func labelToProject(l ghLabel) *model.Project {
	name := strings.TrimPrefix(l.Name, projectLabelPrefix)
	return &model.Project{
		ID:             name,
		Name:           name,
		Description:    l.Description,
		LastAccessedAt: time.Now().UTC(),
	}
}
