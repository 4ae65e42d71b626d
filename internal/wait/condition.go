package wait

import (
	"context"
	"errors"
	"strings"

	"github.com/copyleftdev/scryflow/internal/dom"
)

// Condition is a predicate over the current state of a page. Check must not
// mutate the page. A satisfied element-based condition returns the element.
type Condition interface {
	Check(ctx context.Context, p dom.Page) (el dom.Element, ok bool, err error)
	String() string
}

type present struct{ loc dom.Locator }

// Present is satisfied once at least one element matches loc.
func Present(loc dom.Locator) Condition { return present{loc} }

func (c present) Check(ctx context.Context, p dom.Page) (dom.Element, bool, error) {
	els, err := p.Query(ctx, c.loc)
	if err != nil || len(els) == 0 {
		return nil, false, err
	}
	return els[0], true, nil
}

func (c present) String() string { return "element present: " + c.loc.String() }

type visible struct {
	loc       dom.Locator
	clickable bool
}

// Visible is satisfied by the first matching element that is rendered.
func Visible(loc dom.Locator) Condition { return visible{loc: loc} }

// Clickable is satisfied by the first matching element that is rendered and
// enabled.
func Clickable(loc dom.Locator) Condition { return visible{loc: loc, clickable: true} }

func (c visible) Check(ctx context.Context, p dom.Page) (dom.Element, bool, error) {
	els, err := p.Query(ctx, c.loc)
	if err != nil {
		return nil, false, err
	}
	for _, el := range els {
		ok, err := el.Visible(ctx)
		if err != nil {
			return nil, false, err
		}
		if ok && c.clickable {
			ok, err = el.Enabled(ctx)
			if err != nil {
				return nil, false, err
			}
		}
		if ok {
			return el, true, nil
		}
	}
	return nil, false, nil
}

func (c visible) String() string {
	if c.clickable {
		return "element clickable: " + c.loc.String()
	}
	return "element visible: " + c.loc.String()
}

type absent struct{ loc dom.Locator }

// Absent is satisfied when no element matches loc.
func Absent(loc dom.Locator) Condition { return absent{loc} }

func (c absent) Check(ctx context.Context, p dom.Page) (dom.Element, bool, error) {
	els, err := p.Query(ctx, c.loc)
	if err != nil {
		return nil, false, err
	}
	return nil, len(els) == 0, nil
}

func (c absent) String() string { return "element absent: " + c.loc.String() }

type textPresent struct{ substr string }

// TextPresent is satisfied when the page's visible text contains substr.
func TextPresent(substr string) Condition { return textPresent{substr} }

func (c textPresent) Check(ctx context.Context, p dom.Page) (dom.Element, bool, error) {
	text, err := p.Text(ctx)
	if err != nil {
		return nil, false, err
	}
	return nil, strings.Contains(text, c.substr), nil
}

func (c textPresent) String() string { return "text present: " + `"` + c.substr + `"` }

type all struct{ conds []Condition }

// All is satisfied when every condition holds in the same poll. The element
// of the last element-producing condition is returned.
func All(conds ...Condition) Condition { return all{conds} }

func (c all) Check(ctx context.Context, p dom.Page) (dom.Element, bool, error) {
	var found dom.Element
	for _, cond := range c.conds {
		el, ok, err := cond.Check(ctx, p)
		if err != nil || !ok {
			return nil, false, err
		}
		if el != nil {
			found = el
		}
	}
	return found, true, nil
}

func (c all) String() string {
	parts := make([]string, len(c.conds))
	for i, cond := range c.conds {
		parts[i] = cond.String()
	}
	return "all of (" + strings.Join(parts, "; ") + ")"
}

// transient reports whether a check error only means the page moved under
// the check, in which case the next poll re-resolves from scratch.
func transient(err error) bool {
	return errors.Is(err, dom.ErrStaleElement)
}
