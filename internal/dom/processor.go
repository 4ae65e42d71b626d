package dom

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"golang.org/x/net/html"
)

func GetFullHTMLAction(res *string) chromedp.Action {
	return chromedp.Evaluate(`document.documentElement.outerHTML`, res)
}

func GetTextContentAction(res *string) chromedp.Action {
	return chromedp.Evaluate(`document.body ? document.body.innerText : ""`, res)
}

func NavigateAction(url string) chromedp.Action {
	return chromedp.Navigate(url)
}

func ScreenshotAction(quality int, res *[]byte) chromedp.Action {
	return chromedp.FullScreenshot(res, quality)
}

// IsElementPresentAction checks if an element exists without waiting for it.
func IsElementPresentAction(selector string, isPresent *bool) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		var nodes []*cdp.Node
		err := chromedp.Nodes(selector, &nodes, chromedp.ByQuery, chromedp.AtLeast(0)).Do(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			*isPresent = false
			return nil
		}
		*isPresent = len(nodes) > 0
		return nil
	})
}

// VerifyBrowserAction loads url and records what a working browser should be
// able to report about it.
func VerifyBrowserAction(url string, result map[string]interface{}) chromedp.Action {
	var title, markup string
	var bodyPresent bool
	return chromedp.Tasks{
		NavigateAction(url),
		chromedp.Title(&title),
		GetFullHTMLAction(&markup),
		IsElementPresentAction("body", &bodyPresent),
		chromedp.ActionFunc(func(context.Context) error {
			result["title"] = title
			result["html_length"] = len(markup)
			result["body_present"] = bodyPresent
			return nil
		}),
	}
}

// GetSimplifiedDOM strips scripts, styles and presentational attributes from a
// document, keeping the structure and the attributes locators rely on.
func GetSimplifiedDOM(htmlContent string) (string, error) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	err = simplifyNode(&buf, doc)
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

var keptTags = map[string]bool{
	"html": true, "head": true, "body": true, "title": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"p": true, "div": true, "span": true, "br": true, "hr": true,
	"ul": true, "ol": true, "li": true,
	"table": true, "thead": true, "tbody": true, "tfoot": true, "tr": true, "th": true, "td": true,
	"a": true, "button": true, "input": true, "textarea": true, "select": true, "option": true, "label": true,
	"form": true, "img": true, "pre": true, "code": true, "strong": true, "em": true, "b": true, "i": true,
	"fieldset": true, "legend": true,
}

var voidTags = map[string]bool{"br": true, "hr": true, "input": true, "img": true}

var keptAttrs = map[string]bool{
	"href": true, "src": true, "alt": true, "title": true,
	"id": true, "class": true, "action": true, "method": true, "for": true,
	"type": true, "value": true, "placeholder": true, "name": true,
	"selected": true, "checked": true, "disabled": true, "readonly": true, "hidden": true,
	"aria-label": true, "aria-hidden": true, "role": true,
}

var flagAttrs = map[string]bool{"value": true, "selected": true, "checked": true, "disabled": true, "readonly": true, "hidden": true}

func simplifyNode(w io.Writer, n *html.Node) error {
	switch n.Type {
	case html.ErrorNode, html.CommentNode:
		return nil
	case html.DoctypeNode:
		if _, err := io.WriteString(w, "<!DOCTYPE "+n.Data+">"); err != nil {
			return err
		}
	case html.TextNode:
		trimmed := strings.TrimSpace(n.Data)
		if trimmed != "" {
			if _, err := io.WriteString(w, html.EscapeString(trimmed)+" "); err != nil {
				return err
			}
		}
		return nil
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "noscript", "meta", "link", "svg":
			return nil
		}
		if !keptTags[n.Data] {
			return simplifyChildren(w, n)
		}

		if _, err := io.WriteString(w, "<"+n.Data); err != nil {
			return err
		}
		for _, a := range n.Attr {
			if !keptAttrs[a.Key] {
				continue
			}
			val := strings.TrimSpace(a.Val)
			if val == "" && !flagAttrs[a.Key] {
				continue
			}
			// Never leak typed passwords into diagnostics.
			if a.Key == "value" && attr(n, "type") == "password" {
				val = ""
			}
			if _, err := io.WriteString(w, " "+a.Key+"=\""+html.EscapeString(val)+"\""); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, ">"); err != nil {
			return err
		}
	}

	if err := simplifyChildren(w, n); err != nil {
		return err
	}

	if n.Type == html.ElementNode && !voidTags[n.Data] {
		if _, err := io.WriteString(w, "</"+n.Data+">"); err != nil {
			return err
		}
	}
	return nil
}

func simplifyChildren(w io.Writer, n *html.Node) error {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := simplifyNode(w, c); err != nil {
			return err
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
