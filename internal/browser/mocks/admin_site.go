package mocks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/copyleftdev/scryflow/internal/auth"
	"github.com/copyleftdev/scryflow/internal/dom"
	"golang.org/x/net/html"
)

// User is an account of the fake site.
type User struct {
	ID         int
	Username   string
	Password   string
	Email      string
	Active     bool
	Staff      bool
	Superuser  bool
	TOTPSecret string
}

// AdminSite implements dom.Page as an in-memory imitation of the Django
// admin pages the workflow drives: login (with optional OTP), user add and
// change forms, logout form, password change. Timing knobs let tests
// reproduce slow renders, missing controls and detached elements.
type AdminSite struct {
	mu sync.Mutex

	baseURL string
	users   map[string]*User
	nextID  int
	current string
	pending string // user that passed the password step and owes an OTP

	path       string
	doc        *html.Node
	gen        int
	renderedAt time.Time

	// A click that submits a form swaps the document after transitionDelay.
	transitionDelay time.Duration
	next            *html.Node
	nextPath        string
	swapAt          time.Time

	delays     map[string]time.Duration
	decorators map[string]string
	staleOnce  map[string]bool

	clicks      []string
	navigations int
	closed      bool
}

func NewAdminSite(baseURL string) *AdminSite {
	s := &AdminSite{
		baseURL:    strings.TrimRight(baseURL, "/"),
		users:      make(map[string]*User),
		nextID:     1,
		delays:     make(map[string]time.Duration),
		decorators: make(map[string]string),
		staleOnce:  make(map[string]bool),
	}
	s.renderNow("about:blank", "<html><head><title></title></head><body></body></html>")
	return s
}

// AddUser stores u, assigning an id. It mirrors provisioning a superuser.
func (s *AdminSite) AddUser(u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.ID = s.nextID
	s.nextID++
	s.users[u.Username] = &u
}

func (s *AdminSite) User(username string) (User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return User{}, false
	}
	return *u, true
}

// CurrentUser is the username of the logged-in account, if any.
func (s *AdminSite) CurrentUser() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settle()
	return s.current
}

// Path is the path of the document currently shown.
func (s *AdminSite) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settle()
	return s.path
}

// Delay hides elements matching css for d after each render. A negative d
// hides them forever.
func (s *AdminSite) Delay(css string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays[css] = d
}

// Suppress hides elements matching css for good.
func (s *AdminSite) Suppress(css string) { s.Delay(css, -1) }

// SetTransitionDelay keeps the old document on screen for d after a form
// submission before the response replaces it.
func (s *AdminSite) SetTransitionDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transitionDelay = d
}

// Decorate appends markup to the content of every page rendered for path.
// Use "logged_out" for the page shown after logout.
func (s *AdminSite) Decorate(path, markup string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decorators[path] = markup
}

// DetachOnNextType makes the next SendKeys into the field called name fail
// as stale, re-rendering the page as a late client-side render would.
func (s *AdminSite) DetachOnNextType(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staleOnce[name] = true
}

// Clicks lists a description of every click in order.
func (s *AdminSite) Clicks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.clicks...)
}

func (s *AdminSite) Navigations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.navigations
}

func (s *AdminSite) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

var errClosed = errors.New("admin site: page closed")

// --- dom.Page ---

func (s *AdminSite) Navigate(ctx context.Context, rawURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	s.navigations++
	s.next = nil
	path, markup := s.get(u.Path, u.Query())
	s.renderNow(path, markup)
	return nil
}

func (s *AdminSite) Query(ctx context.Context, loc dom.Locator) ([]dom.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errClosed
	}
	s.settle()

	var nodes []*html.Node
	if css, ok := loc.CSS(); ok {
		nodes = goquery.NewDocumentFromNode(s.doc).Find(css).Nodes
	} else {
		var err error
		nodes, err = htmlquery.QueryAll(s.doc, loc.XPathExpr())
		if err != nil {
			return nil, fmt.Errorf("invalid xpath %q: %w", loc.XPathExpr(), err)
		}
	}

	hidden := s.hiddenNodes()
	els := make([]dom.Element, 0, len(nodes))
	for _, n := range nodes {
		if underAny(n, hidden) {
			continue
		}
		els = append(els, &element{site: s, node: n, gen: s.gen})
	}
	return els, nil
}

func (s *AdminSite) Location(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settle()
	if s.path == "about:blank" {
		return s.path, nil
	}
	return s.baseURL + s.path, nil
}

func (s *AdminSite) HTML(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settle()
	var buf bytes.Buffer
	if err := html.Render(&buf, s.doc); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (s *AdminSite) Text(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", errClosed
	}
	s.settle()
	var b strings.Builder
	collectText(&b, s.doc, s.hiddenNodes())
	return b.String(), nil
}

// Screenshot returns a PNG signature so artifact writers have bytes to store.
func (s *AdminSite) Screenshot(context.Context) ([]byte, error) {
	return []byte("\x89PNG\r\n\x1a\n"), nil
}

func (s *AdminSite) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// --- documents ---

func (s *AdminSite) renderNow(path, markup string) {
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		panic(fmt.Sprintf("admin site template for %s does not parse: %v", path, err))
	}
	s.doc = doc
	s.path = path
	s.gen++
	s.renderedAt = time.Now()
}

func (s *AdminSite) renderAfterSubmit(path, markup string) {
	if s.transitionDelay <= 0 {
		s.renderNow(path, markup)
		return
	}
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		panic(fmt.Sprintf("admin site template for %s does not parse: %v", path, err))
	}
	s.next = doc
	s.nextPath = path
	s.swapAt = time.Now().Add(s.transitionDelay)
}

// settle swaps in a pending document whose delay has passed.
func (s *AdminSite) settle() {
	if s.next == nil || time.Now().Before(s.swapAt) {
		return
	}
	s.doc, s.path = s.next, s.nextPath
	s.next = nil
	s.gen++
	s.renderedAt = time.Now()
}

func (s *AdminSite) hiddenNodes() map[*html.Node]bool {
	hidden := make(map[*html.Node]bool)
	age := time.Since(s.renderedAt)
	for css, d := range s.delays {
		if d >= 0 && age >= d {
			continue
		}
		for _, n := range goquery.NewDocumentFromNode(s.doc).Find(css).Nodes {
			hidden[n] = true
		}
	}
	return hidden
}

func underAny(n *html.Node, set map[*html.Node]bool) bool {
	for ; n != nil; n = n.Parent {
		if set[n] {
			return true
		}
	}
	return false
}

func collectText(b *strings.Builder, n *html.Node, hidden map[*html.Node]bool) {
	if hidden[n] {
		return
	}
	if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style" || n.Data == "title") {
		return
	}
	if n.Type == html.TextNode {
		if t := strings.TrimSpace(n.Data); t != "" {
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(t)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(b, c, hidden)
	}
}

// --- elements ---

type element struct {
	site *AdminSite
	node *html.Node
	gen  int
}

func (e *element) attached() error {
	if e.site.closed {
		return errClosed
	}
	e.site.settle()
	if e.gen != e.site.gen {
		return dom.ErrStaleElement
	}
	return nil
}

func (e *element) Visible(context.Context) (bool, error) {
	e.site.mu.Lock()
	defer e.site.mu.Unlock()
	if err := e.attached(); err != nil {
		return false, err
	}
	if getAttr(e.node, "type") == "hidden" {
		return false, nil
	}
	for n := e.node; n != nil; n = n.Parent {
		if hasAttr(n, "hidden") || strings.Contains(strings.ReplaceAll(getAttr(n, "style"), " ", ""), "display:none") {
			return false, nil
		}
	}
	return true, nil
}

func (e *element) Enabled(context.Context) (bool, error) {
	e.site.mu.Lock()
	defer e.site.mu.Unlock()
	if err := e.attached(); err != nil {
		return false, err
	}
	return !hasAttr(e.node, "disabled"), nil
}

func (e *element) Checked(context.Context) (bool, error) {
	e.site.mu.Lock()
	defer e.site.mu.Unlock()
	if err := e.attached(); err != nil {
		return false, err
	}
	return hasAttr(e.node, "checked"), nil
}

func (e *element) Text(context.Context) (string, error) {
	e.site.mu.Lock()
	defer e.site.mu.Unlock()
	if err := e.attached(); err != nil {
		return "", err
	}
	var b strings.Builder
	collectText(&b, e.node, nil)
	return b.String(), nil
}

func (e *element) Clear(context.Context) error {
	e.site.mu.Lock()
	defer e.site.mu.Unlock()
	if err := e.attached(); err != nil {
		return err
	}
	setAttr(e.node, "value", "")
	return nil
}

func (e *element) SendKeys(_ context.Context, value string) error {
	e.site.mu.Lock()
	defer e.site.mu.Unlock()
	if err := e.attached(); err != nil {
		return err
	}
	name := getAttr(e.node, "name")
	if e.site.staleOnce[name] {
		delete(e.site.staleOnce, name)
		path, markup := e.site.get(e.site.path, nil)
		e.site.renderNow(path, markup)
		return dom.ErrStaleElement
	}
	setAttr(e.node, "value", getAttr(e.node, "value")+value)
	return nil
}

func (e *element) Click(context.Context) error {
	e.site.mu.Lock()
	defer e.site.mu.Unlock()
	if err := e.attached(); err != nil {
		return err
	}
	s := e.site
	n := e.node
	s.clicks = append(s.clicks, describeNode(n))

	switch {
	case n.Data == "input" && getAttr(n, "type") == "checkbox":
		if hasAttr(n, "checked") {
			removeAttr(n, "checked")
		} else {
			setAttr(n, "checked", "")
		}
	case isSubmit(n):
		form := enclosingForm(n)
		if form == nil {
			return nil
		}
		action := getAttr(form, "action")
		target := s.path
		var query url.Values
		if action != "" {
			if u, err := url.Parse(action); err == nil {
				if u.Path != "" {
					target = u.Path
				}
				query = u.Query()
			}
		}
		path, markup := s.post(target, query, formValues(form, n))
		s.renderAfterSubmit(path, markup)
	case n.Data == "a" && hasAttr(n, "href"):
		u, err := url.Parse(getAttr(n, "href"))
		if err != nil {
			return err
		}
		path, markup := s.get(u.Path, u.Query())
		s.renderAfterSubmit(path, markup)
	}
	return nil
}

func isSubmit(n *html.Node) bool {
	switch n.Data {
	case "input":
		return getAttr(n, "type") == "submit"
	case "button":
		t := getAttr(n, "type")
		return t == "" || t == "submit"
	}
	return false
}

func enclosingForm(n *html.Node) *html.Node {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && p.Data == "form" {
			return p
		}
	}
	return nil
}

func formValues(form, submitter *html.Node) url.Values {
	values := url.Values{}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "input" {
			name := getAttr(n, "name")
			switch getAttr(n, "type") {
			case "checkbox":
				if name != "" && hasAttr(n, "checked") {
					values.Set(name, "on")
				}
			case "submit":
				if n == submitter && name != "" {
					values.Set(name, getAttr(n, "value"))
				}
			default:
				if name != "" {
					values.Set(name, getAttr(n, "value"))
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(form)
	return values
}

func describeNode(n *html.Node) string {
	var b strings.Builder
	b.WriteString(n.Data)
	for _, key := range []string{"id", "name", "type", "value"} {
		if v := getAttr(n, key); v != "" {
			fmt.Fprintf(&b, " %s=%q", key, v)
		}
	}
	return b.String()
}

func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) {
	kept := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Key != key {
			kept = append(kept, a)
		}
	}
	n.Attr = kept
}

// --- routing ---

var changePath = regexp.MustCompile(`^/admin/auth/user/(\d+)/change/$`)

// get returns the path and markup that a GET of path ends up showing,
// following redirects.
func (s *AdminSite) get(path string, query url.Values) (string, string) {
	user := s.users[s.current]
	switch {
	case path == "/":
		return path, s.page("Home", "", `<h1>Welcome to the site</h1>`, "")
	case path == "/admin/login/":
		if user != nil {
			return s.get("/admin/", nil)
		}
		return path, s.loginPage(query.Get("next"), "")
	case path == "/admin/logout/":
		return path, s.page("405 Method Not Allowed", "", `<h1>Method Not Allowed (GET)</h1>`, "")
	case user == nil:
		return s.get("/admin/login/", url.Values{"next": {path}})
	case path == "/admin/":
		return path, s.page("Site administration | Django site admin", "",
			`<h1>Site administration</h1><div id="content-main"><table><caption>Authentication and Authorization</caption>`+
				`<tr><th><a href="/admin/auth/user/">Users</a></th></tr></table></div>`, "")
	case path == "/admin/password_change/":
		return path, s.passwordChangePage("")
	case path == "/admin/password_change/done/":
		return path, s.page("Password change successful | Django site admin", "",
			`<h1>Password change successful</h1><p>Your password was changed.</p>`, "")
	case !user.Superuser && strings.HasPrefix(path, "/admin/auth/"):
		return path, s.page("403 Forbidden", "", `<h1>403 Forbidden</h1>`, "")
	case path == "/admin/auth/user/":
		return path, s.changelistPage("")
	case path == "/admin/auth/user/add/":
		return path, s.addUserPage("")
	case changePath.MatchString(path):
		id, _ := strconv.Atoi(changePath.FindStringSubmatch(path)[1])
		if target := s.userByID(id); target != nil {
			return path, s.changeUserPage(target, "")
		}
	}
	return path, s.page("Page not found", "", `<h1>Not Found</h1>`, "")
}

func (s *AdminSite) post(path string, query, form url.Values) (string, string) {
	user := s.users[s.current]
	switch {
	case path == "/admin/login/":
		return s.postLogin(query, form)
	case path == "/admin/logout/":
		s.current = ""
		return path, s.page("Logged out | Django site admin", "",
			`<h1>Logged out</h1><p>Thanks for spending some quality time with the web site today.</p>`+
				`<p><a href="/admin/">Log in again</a></p>`+s.decorators["logged_out"], "")
	case user == nil:
		return s.get("/admin/login/", url.Values{"next": {path}})
	case path == "/admin/password_change/":
		if form.Get("old_password") != user.Password {
			return path, s.passwordChangePage("Your old password was entered incorrectly. Please enter it again.")
		}
		if form.Get("new_password1") == "" || form.Get("new_password1") != form.Get("new_password2") {
			return path, s.passwordChangePage("The two password fields didn’t match.")
		}
		user.Password = form.Get("new_password1")
		return s.get("/admin/password_change/done/", nil)
	case !user.Superuser:
		return path, s.page("403 Forbidden", "", `<h1>403 Forbidden</h1>`, "")
	case path == "/admin/auth/user/add/":
		username := form.Get("username")
		switch {
		case username == "":
			return path, s.addUserPage("This field is required.")
		case s.users[username] != nil:
			return path, s.addUserPage("A user with that username already exists.")
		case form.Get("password1") == "" || form.Get("password1") != form.Get("password2"):
			return path, s.addUserPage("The two password fields didn’t match.")
		}
		created := &User{ID: s.nextID, Username: username, Password: form.Get("password1"), Active: true}
		s.nextID++
		s.users[username] = created
		changeURL := fmt.Sprintf("/admin/auth/user/%d/change/", created.ID)
		return changeURL, s.changeUserPage(created,
			fmt.Sprintf("The user “%s” was added successfully. You may edit it again below.", html.EscapeString(username)))
	case changePath.MatchString(path):
		id, _ := strconv.Atoi(changePath.FindStringSubmatch(path)[1])
		target := s.userByID(id)
		if target == nil {
			break
		}
		target.Active = form.Get("is_active") == "on"
		target.Staff = form.Get("is_staff") == "on"
		target.Superuser = form.Get("is_superuser") == "on"
		return "/admin/auth/user/", s.changelistPage(
			fmt.Sprintf("The user “%s” was changed successfully.", html.EscapeString(target.Username)))
	}
	return path, s.page("Page not found", "", `<h1>Not Found</h1>`, "")
}

func (s *AdminSite) postLogin(query, form url.Values) (string, string) {
	next := query.Get("next")
	if next == "" {
		next = "/admin/"
	}

	if token := form.Get("otp_token"); token != "" || s.pending != "" {
		u := s.users[s.pending]
		var valid bool
		if u != nil {
			valid, _ = auth.ValidateTOTP(token, u.TOTPSecret)
		}
		if !valid {
			return "/admin/login/", s.otpPage(next, "Invalid token. Please make sure you have entered it correctly.")
		}
		s.pending = ""
		s.current = u.Username
		return s.get(next, nil)
	}

	u := s.users[form.Get("username")]
	if u == nil || u.Password != form.Get("password") || !u.Active || !u.Staff {
		return "/admin/login/", s.loginPage(next,
			"Please enter the correct username and password for a staff account. Note that both fields may be case-sensitive.")
	}
	if u.TOTPSecret != "" {
		s.pending = u.Username
		return "/admin/login/", s.otpPage(next, "")
	}
	s.current = u.Username
	return s.get(next, nil)
}

func (s *AdminSite) userByID(id int) *User {
	for _, u := range s.users {
		if u.ID == id {
			return u
		}
	}
	return nil
}

// --- templates ---

func (s *AdminSite) page(title, messages, content, errornote string) string {
	var tools string
	if u := s.users[s.current]; u != nil {
		tools = fmt.Sprintf(`<div id="user-tools">Welcome, <strong>%s</strong>. <a href="/">View site</a> / `+
			`<a href="/admin/password_change/">Change password</a> / `+
			`<form id="logout-form" method="post" action="/admin/logout/">`+
			`<input type="hidden" name="csrfmiddlewaretoken" value="token">`+
			`<button type="submit">Log out</button></form></div>`, html.EscapeString(u.Username))
	}
	if messages != "" {
		messages = `<ul class="messagelist"><li class="success">` + messages + `</li></ul>`
	}
	if errornote != "" {
		errornote = `<p class="errornote">Please correct the error below.</p><ul class="errorlist"><li>` + errornote + `</li></ul>`
	}
	return `<!DOCTYPE html><html lang="en"><head><title>` + html.EscapeString(title) + `</title>` +
		`<script>document.documentElement.dataset.ready = "1";</script></head><body>` +
		`<div id="header"><div id="site-name"><a href="/admin/">Django administration</a></div>` + tools + `</div>` +
		messages + `<div id="content">` + errornote + content + s.decorators[s.routeKey(title)] + `</div></body></html>`
}

// routeKey maps a page title back to a decorator key. Decorators are keyed by
// path; the title of the page being rendered is enough to find it.
func (s *AdminSite) routeKey(title string) string {
	switch {
	case strings.HasPrefix(title, "Site administration"):
		return "/admin/"
	case strings.HasPrefix(title, "Log in"):
		return "/admin/login/"
	case strings.HasPrefix(title, "Password change successful"):
		return "/admin/password_change/done/"
	case strings.HasPrefix(title, "Password change"):
		return "/admin/password_change/"
	case strings.HasPrefix(title, "Add user"):
		return "/admin/auth/user/add/"
	case strings.HasPrefix(title, "Select user"):
		return "/admin/auth/user/"
	}
	return ""
}

func (s *AdminSite) loginPage(next, errMsg string) string {
	action := "/admin/login/"
	if next != "" {
		action += "?next=" + url.QueryEscape(next)
	}
	var note string
	if errMsg != "" {
		note = `<p class="errornote">` + errMsg + `</p>`
	}
	return s.page("Log in | Django site admin", "", note+
		`<div id="content-main"><form action="`+html.EscapeString(action)+`" method="post" id="login-form">`+
		`<div class="form-row"><label for="id_username">Username:</label>`+
		`<input type="text" name="username" autofocus autocapitalize="none" autocomplete="username" maxlength="150" required id="id_username"></div>`+
		`<div class="form-row"><label for="id_password">Password:</label>`+
		`<input type="password" name="password" autocomplete="current-password" required id="id_password"></div>`+
		`<div class="submit-row"><input type="submit" value="Log in"></div></form></div>`, "")
}

func (s *AdminSite) otpPage(next, errMsg string) string {
	var note string
	if errMsg != "" {
		note = `<p class="errornote">` + errMsg + `</p>`
	}
	return s.page("Log in | Django site admin", "", note+
		`<div id="content-main"><form action="/admin/login/?next=`+url.QueryEscape(next)+`" method="post" id="otp-form">`+
		`<div class="form-row"><label for="id_otp_token">Token:</label>`+
		`<input type="text" name="otp_token" autocomplete="one-time-code" id="id_otp_token"></div>`+
		`<div class="submit-row"><input type="submit" value="Verify"></div></form></div>`, "")
}

func (s *AdminSite) passwordChangePage(errMsg string) string {
	return s.page("Password change | Django site admin", "",
		`<h1>Password change</h1><form method="post">`+
			`<p>Please enter your old password, for security’s sake, and then enter your new password twice so we can verify you typed it in correctly.</p>`+
			`<div class="form-row"><label for="id_old_password">Old password:</label>`+
			`<input type="password" name="old_password" autocomplete="current-password" autofocus required id="id_old_password"></div>`+
			`<div class="form-row"><label for="id_new_password1">New password:</label>`+
			`<input type="password" name="new_password1" autocomplete="new-password" required id="id_new_password1"></div>`+
			`<div class="form-row"><label for="id_new_password2">New password confirmation:</label>`+
			`<input type="password" name="new_password2" autocomplete="new-password" required id="id_new_password2"></div>`+
			`<div class="submit-row"><input type="submit" value="Change my password" class="default"></div></form>`,
		errMsg)
}

func (s *AdminSite) addUserPage(errMsg string) string {
	return s.page("Add user | Django site admin", "",
		`<h1>Add user</h1><form method="post" id="user_form" novalidate>`+
			`<p>First, enter a username and password. Then, you’ll be able to edit more user options.</p>`+
			`<fieldset class="module aligned">`+
			`<div class="form-row field-username"><label class="required" for="id_username">Username:</label>`+
			`<input type="text" name="username" maxlength="150" autocapitalize="none" autocomplete="username" autofocus required id="id_username"></div>`+
			`<div class="form-row field-password1"><label class="required" for="id_password1">Password:</label>`+
			`<input type="password" name="password1" autocomplete="new-password" id="id_password1"></div>`+
			`<div class="form-row field-password2"><label class="required" for="id_password2">Password confirmation:</label>`+
			`<input type="password" name="password2" autocomplete="new-password" id="id_password2"></div>`+
			`</fieldset><div class="submit-row">`+
			`<input type="submit" value="Save" class="default" name="_save">`+
			`<input type="submit" value="Save and add another" name="_addanother">`+
			`<input type="submit" value="Save and continue editing" name="_continue"></div></form>`,
		errMsg)
}

func (s *AdminSite) changeUserPage(u *User, message string) string {
	box := func(name, label string, on bool) string {
		checked := ""
		if on {
			checked = " checked"
		}
		return fmt.Sprintf(`<div class="form-row field-%[1]s"><div class="checkbox-row">`+
			`<input type="checkbox" name="%[1]s" id="id_%[1]s"%[3]s><label class="vCheckboxLabel" for="id_%[1]s">%[2]s</label></div></div>`,
			name, label, checked)
	}
	return s.page(fmt.Sprintf("%s | Change user | Django site admin", html.EscapeString(u.Username)), message,
		`<h1>Change user</h1><h2>`+html.EscapeString(u.Username)+`</h2>`+
			`<form method="post" id="user_form" novalidate><fieldset class="module aligned">`+
			`<div class="form-row field-username"><label for="id_username">Username:</label>`+
			`<input type="text" name="username" value="`+html.EscapeString(u.Username)+`" id="id_username"></div>`+
			`</fieldset><fieldset class="module aligned"><h2>Permissions</h2>`+
			box("is_active", "Active", u.Active)+
			box("is_staff", "Staff status", u.Staff)+
			box("is_superuser", "Superuser status", u.Superuser)+
			`</fieldset><div class="submit-row">`+
			`<input type="submit" value="Save" class="default" name="_save">`+
			`<input type="submit" value="Save and continue editing" name="_continue"></div></form>`,
		"")
}

func (s *AdminSite) changelistPage(message string) string {
	var rows strings.Builder
	for _, u := range s.users {
		fmt.Fprintf(&rows, `<tr><th><a href="/admin/auth/user/%d/change/">%s</a></th></tr>`, u.ID, html.EscapeString(u.Username))
	}
	return s.page("Select user to change | Django site admin", message,
		`<h1>Select user to change</h1><table id="result_list"><tbody>`+rows.String()+`</tbody></table>`, "")
}
