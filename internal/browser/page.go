package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/cdp"
	cdpdom "github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/copyleftdev/scryflow/internal/dom"
)

// Compile-time checks for the chromedp backend.
var (
	_ dom.Page    = (*cdpPage)(nil)
	_ dom.Element = (*cdpElement)(nil)
)

const screenshotQuality = 90

// cdpPage drives one browser tab. tabCtx is the context returned by
// chromedp.NewContext; cancelling it closes the tab.
type cdpPage struct {
	tabCtx context.Context
	close  func()
}

// run executes actions on the tab while honouring ctx's deadline and
// cancellation. Cancelling a context derived from the tab context aborts the
// actions without closing the tab.
func (p *cdpPage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.tabCtx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return classify(err)
	}
	return nil
}

func (p *cdpPage) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, dom.NavigateAction(url))
}

func (p *cdpPage) Query(ctx context.Context, loc dom.Locator) ([]dom.Element, error) {
	var nodes []*cdp.Node
	var err error
	if css, ok := loc.CSS(); ok {
		err = p.run(ctx, chromedp.Nodes(css, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)))
	} else {
		err = p.run(ctx, chromedp.Nodes(loc.XPathExpr(), &nodes, chromedp.BySearch, chromedp.AtLeast(0)))
	}
	if err != nil {
		return nil, err
	}
	els := make([]dom.Element, 0, len(nodes))
	for _, n := range nodes {
		els = append(els, &cdpElement{page: p, node: n})
	}
	return els, nil
}

func (p *cdpPage) Location(ctx context.Context) (string, error) {
	var url string
	err := p.run(ctx, chromedp.Location(&url))
	return url, err
}

func (p *cdpPage) HTML(ctx context.Context) (string, error) {
	var markup string
	err := p.run(ctx, dom.GetFullHTMLAction(&markup))
	return markup, err
}

func (p *cdpPage) Text(ctx context.Context) (string, error) {
	var text string
	err := p.run(ctx, dom.GetTextContentAction(&text))
	return text, err
}

func (p *cdpPage) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := p.run(ctx, dom.ScreenshotAction(screenshotQuality, &buf))
	return buf, err
}

func (p *cdpPage) Close(context.Context) error {
	p.close()
	return nil
}

type cdpElement struct {
	page *cdpPage
	node *cdp.Node
}

const (
	jsVisible = `function() {
	const s = window.getComputedStyle(this);
	return s.visibility !== 'hidden' && s.display !== 'none' && this.getClientRects().length > 0;
}`
	jsEnabled = `function() { return !this.disabled; }`
	jsChecked = `function() { return !!this.checked; }`
	jsText    = `function() { return this.textContent || ""; }`
	jsClear   = `function() {
	if (!('value' in this)) { return false; }
	this.value = '';
	this.dispatchEvent(new Event('input', { bubbles: true }));
	return true;
}`
)

func (e *cdpElement) call(ctx context.Context, fn string, res interface{}) error {
	return e.page.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		obj, err := cdpdom.ResolveNode().WithNodeID(e.node.NodeID).Do(ctx)
		if err != nil {
			return err
		}
		// Released on a best effort basis; a navigation frees it anyway.
		defer runtime.ReleaseObject(obj.ObjectID).Do(ctx)
		return chromedp.CallFunctionOn(fn, res, func(p *runtime.CallFunctionOnParams) *runtime.CallFunctionOnParams {
			return p.WithObjectID(obj.ObjectID)
		}).Do(ctx)
	}))
}

func (e *cdpElement) Visible(ctx context.Context) (bool, error) {
	var ok bool
	err := e.call(ctx, jsVisible, &ok)
	return ok, err
}

func (e *cdpElement) Enabled(ctx context.Context) (bool, error) {
	var ok bool
	err := e.call(ctx, jsEnabled, &ok)
	return ok, err
}

func (e *cdpElement) Checked(ctx context.Context) (bool, error) {
	var ok bool
	err := e.call(ctx, jsChecked, &ok)
	return ok, err
}

func (e *cdpElement) Text(ctx context.Context) (string, error) {
	var text string
	err := e.call(ctx, jsText, &text)
	return text, err
}

func (e *cdpElement) Clear(ctx context.Context) error {
	var cleared bool
	return e.call(ctx, jsClear, &cleared)
}

func (e *cdpElement) SendKeys(ctx context.Context, value string) error {
	return e.page.run(ctx, chromedp.KeyEventNode(e.node, value))
}

func (e *cdpElement) Click(ctx context.Context) error {
	return e.page.run(ctx, chromedp.MouseClickNode(e.node))
}

// staleMessages are the protocol errors Chrome reports when a node id or its
// execution context no longer belongs to the live document.
var staleMessages = []string{
	"no node with given id",
	"could not find node with given id",
	"node with given id does not belong to the document",
	"cannot find context with specified id",
	"execution context was destroyed",
	"node is detached from document",
}

func classify(err error) error {
	var protoErr *cdproto.Error
	msg := err.Error()
	if errors.As(err, &protoErr) {
		msg = protoErr.Message
	}
	lower := strings.ToLower(msg)
	for _, m := range staleMessages {
		if strings.Contains(lower, m) {
			return fmt.Errorf("%w: %v", dom.ErrStaleElement, err)
		}
	}
	return err
}
