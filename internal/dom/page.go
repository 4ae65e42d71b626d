package dom

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrStaleElement is returned when an element handle refers to a node that is
// no longer attached to the current document.
var ErrStaleElement = errors.New("stale element: node is detached from the page")

// Page is the remote document a session drives. Query never blocks waiting for
// elements to appear; polling is the caller's job.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Query(ctx context.Context, loc Locator) ([]Element, error)
	Location(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)
	Text(ctx context.Context) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)
	Close(ctx context.Context) error
}

// Element is a transient handle on a node of the current document. Handles
// must be re-resolved after any navigation.
type Element interface {
	Visible(ctx context.Context) (bool, error)
	Enabled(ctx context.Context) (bool, error)
	Checked(ctx context.Context) (bool, error)
	Text(ctx context.Context) (string, error)
	Clear(ctx context.Context) error
	SendKeys(ctx context.Context, value string) error
	Click(ctx context.Context) error
}

type Strategy string

const (
	ByID    Strategy = "id"
	ByName  Strategy = "name"
	ByQuery Strategy = "css"
	ByXPath Strategy = "xpath"
	ByText  Strategy = "text"
)

// Locator identifies elements by a single attribute or expression.
type Locator struct {
	By    Strategy `mapstructure:"by" json:"by"`
	Value string   `mapstructure:"value" json:"value"`
}

func ID(id string) Locator { return Locator{By: ByID, Value: id} }
func Name(name string) Locator { return Locator{By: ByName, Value: name} }
func Query(css string) Locator { return Locator{By: ByQuery, Value: css} }
func XPath(expr string) Locator { return Locator{By: ByXPath, Value: expr} }
func Text(substr string) Locator { return Locator{By: ByText, Value: substr} }
func (l Locator) IsZero() bool { return l.Value == "" }
func (l Locator) String() string { return fmt.Sprintf("%s=%q", l.By, l.Value) }

// CSS returns the locator as a CSS selector. ok is false for XPath and text
// locators, which have no CSS form.
func (l Locator) CSS() (sel string, ok bool) {
	switch l.By {
	case ByID:
		return "[id=" + cssString(l.Value) + "]", true
	case ByName:
		return "[name=" + cssString(l.Value) + "]", true
	case ByQuery:
		return l.Value, true
	}
	return "", false
}

// XPathExpr returns the locator as an XPath expression. Every strategy has one.
func (l Locator) XPathExpr() string {
	switch l.By {
	case ByID:
		return "//*[@id=" + xpathString(l.Value) + "]"
	case ByName:
		return "//*[@name=" + xpathString(l.Value) + "]"
	case ByText:
		// Matches the innermost element owning a text node with the substring.
		return "//*[text()[contains(., " + xpathString(l.Value) + ")]]"
	case ByXPath:
		return l.Value
	}
	return ""
}

func cssString(s string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s) + `"`
}

// xpathString quotes s as an XPath 1.0 literal, falling back to concat() when
// s contains both quote characters.
func xpathString(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		if p != "" {
			quoted = append(quoted, "'"+p+"'")
		}
	}
	if len(quoted) == 1 {
		return quoted[0]
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}
