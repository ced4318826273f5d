package session

import (
	"context"
	"fmt"

	"github.com/roach88/pyrewind/internal/engine"
	"github.com/roach88/pyrewind/internal/ir"
)

// SelectObject looks name up in the current frame's locals, then globals,
// and makes the object it is bound to the selection.
func (s *Session) SelectObject(name string) (Selection, error) {
	obj, scope, err := s.rd.LookupVariable(name)
	if err != nil {
		return Selection{}, fmt.Errorf("select %q: %w", name, err)
	}
	sel := Selection{Name: ir.NormalizeName(name), Object: obj, Scope: scope}
	if typ, err := s.rd.TypeName(obj); err == nil {
		sel.Type = typ
	}

	s.mu.Lock()
	s.selection = &sel
	s.mu.Unlock()

	s.logger.Debug("object selected",
		"name", sel.Name,
		"object", sel.Object.String(),
		"scope", string(sel.Scope),
	)
	return sel, nil
}

// Selected returns the selection.
func (s *Session) Selected() (Selection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selection == nil {
		return Selection{}, false
	}
	return *s.selection, true
}

// ClearSelection drops the selection.
func (s *Session) ClearSelection() {
	s.mu.Lock()
	s.selection = nil
	s.mu.Unlock()
}

// LastAttr searches for the last (or next) change to an object's
// attributes. The search is returned resolved against the selection, and
// remembered for RepeatLastAttr.
func (s *Session) LastAttr(ctx context.Context, search AttrSearch) (ir.NavigationResult, AttrSearch, error) {
	if search.Object == 0 {
		if sel, ok := s.Selected(); ok {
			search.Object = sel.Object
		}
	}
	if search.Direction == 0 {
		search.Direction = ir.Backward
	}
	res, err := s.eng.Navigate(ctx, engine.Request{
		Operation: ir.OpLastAttributeChange,
		Direction: search.Direction,
		Object:    search.Object,
		Attribute: search.Attribute,
		MaxSteps:  search.MaxSteps,
	})
	if err != nil {
		return res, search, err
	}

	s.mu.Lock()
	remembered := search
	s.lastSearch = &remembered
	s.mu.Unlock()
	return res, search, nil
}

// RepeatLastAttr runs the previous attribute search again from the current
// position.
func (s *Session) RepeatLastAttr(ctx context.Context) (ir.NavigationResult, AttrSearch, error) {
	s.mu.Lock()
	last := s.lastSearch
	s.mu.Unlock()
	if last == nil {
		return ir.NavigationResult{}, AttrSearch{}, ErrNoSearch
	}
	return s.LastAttr(ctx, *last)
}
