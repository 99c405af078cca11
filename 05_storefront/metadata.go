package storefront

import (
	"context"
	"fmt"
)

func (s *session) fillTitle(ctx context.Context, title string) error {
	if title == "" {
		return fmt.Errorf("%w: empty title", errStepSkipped)
	}
	if s.count(ctx, TitleInput) == 0 {
		return fmt.Errorf("%w: %s", ErrInputNotFound, TitleInput.Name)
	}
	if err := s.page.Fill(ctx, TitleInput.Nth(0), title); err != nil {
		return fmt.Errorf("fill title: %w", err)
	}
	s.log.Infow("title set", "title", title)
	return nil
}

// tagInput returns the newest tag field of the first label variant present.
func (s *session) tagInput(ctx context.Context) (Selector, error) {
	for _, sel := range TagInputs {
		if s.count(ctx, sel) > 0 {
			return sel.Last(), nil
		}
	}
	return Selector{}, fmt.Errorf("%w: no tag input variant matched", ErrInputNotFound)
}

// fillTags enters each tag in order, committing it with Enter.
func (s *session) fillTags(ctx context.Context, tags []string) error {
	if len(tags) == 0 {
		return fmt.Errorf("%w: no tags", errStepSkipped)
	}
	for _, tag := range tags {
		input, err := s.tagInput(ctx)
		if err != nil {
			return err
		}
		if err := s.waitVisible(ctx, input, s.t.TagVisible); err != nil {
			return fmt.Errorf("tag input for %q: %w", tag, err)
		}
		if err := s.page.Fill(ctx, input, tag); err != nil {
			return fmt.Errorf("fill tag %q: %w", tag, err)
		}
		if err := s.page.Press(ctx, input, keyEnter); err != nil {
			return fmt.Errorf("commit tag %q: %w", tag, err)
		}
		s.log.Debugw("tag added", "tag", tag)
		if err := s.pause(ctx, s.t.TagPause); err != nil {
			return err
		}
	}
	return nil
}

func (s *session) autofill(ctx context.Context) error {
	control := AutofillControl
	if s.count(ctx, control) == 0 {
		control = AutofillButton
		if s.count(ctx, control) == 0 {
			return fmt.Errorf("%w: autofill control", ErrInputNotFound)
		}
	}
	if err := s.click(ctx, control.Nth(0)); err != nil {
		return fmt.Errorf("click autofill: %w", err)
	}
	return s.waitChangesSaved(ctx)
}

// emptyCollaboratorField returns the first collaborator field with no value,
// or the last field when every one is filled.
func (s *session) emptyCollaboratorField(ctx context.Context) (Selector, error) {
	n := s.count(ctx, CollaboratorInput)
	if n == 0 {
		if err := s.click(ctx, AddCollaboratorBtn.Nth(0)); err != nil {
			return Selector{}, fmt.Errorf("add collaborator field: %w", err)
		}
		if err := s.pause(ctx, s.t.CollaboratorSettle); err != nil {
			return Selector{}, err
		}
		if n = s.count(ctx, CollaboratorInput); n == 0 {
			return Selector{}, fmt.Errorf("%w: %s", ErrInputNotFound, CollaboratorInput.Name)
		}
	}
	for i := 0; i < n; i++ {
		v, err := s.page.Value(ctx, CollaboratorInput.Nth(i))
		if err == nil && v == "" {
			return CollaboratorInput.Nth(i), nil
		}
	}
	return CollaboratorInput.Last(), nil
}

func (s *session) fillCollaborators(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return fmt.Errorf("%w: no collaborators", errStepSkipped)
	}
	for _, name := range names {
		field, err := s.emptyCollaboratorField(ctx)
		if err != nil {
			return err
		}
		if err := s.page.Fill(ctx, field, name); err != nil {
			return fmt.Errorf("fill collaborator %q: %w", name, err)
		}
		if err := s.waitChangesSaved(ctx); err != nil {
			return fmt.Errorf("collaborator %q: %w", name, err)
		}
		s.log.Infow("collaborator added", "name", name)
	}
	return nil
}
