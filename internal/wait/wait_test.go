package wait

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/copyleftdev/scryflow/internal/dom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedPage reports an element for loc once appearAfter queries have been
// made; negative appearAfter means never.
type scriptedPage struct {
	loc         dom.Locator
	appearAfter int32
	queries     atomic.Int32
	text        string
	queryErr    error
	hidden      bool
	disabled    bool
	// shotDelay makes Screenshot hang, ignoring its context.
	shotDelay   time.Duration
}

func (p *scriptedPage) Navigate(context.Context, string) error { return nil }
func (p *scriptedPage) Location(context.Context) (string, error) {
	return "http://app.test/admin/", nil
}
func (p *scriptedPage) HTML(context.Context) (string, error) {
	return "<html><head><title>Scripted</title></head><body><p>scripted</p></body></html>", nil
}
func (p *scriptedPage) Text(context.Context) (string, error) { return p.text, nil }
func (p *scriptedPage) Screenshot(context.Context) ([]byte, error) {
	time.Sleep(p.shotDelay)
	return nil, nil
}
func (p *scriptedPage) Close(context.Context) error { return nil }

func (p *scriptedPage) Query(_ context.Context, loc dom.Locator) ([]dom.Element, error) {
	n := p.queries.Add(1)
	if p.queryErr != nil {
		return nil, p.queryErr
	}
	if loc != p.loc || p.appearAfter < 0 || n <= p.appearAfter {
		return nil, nil
	}
	return []dom.Element{&scriptedElement{visible: !p.hidden, enabled: !p.disabled}}, nil
}

type scriptedElement struct{ visible, enabled bool }

func (e *scriptedElement) Visible(context.Context) (bool, error) { return e.visible, nil }
func (e *scriptedElement) Enabled(context.Context) (bool, error) { return e.enabled, nil }
func (e *scriptedElement) Checked(context.Context) (bool, error) { return false, nil }
func (e *scriptedElement) Text(context.Context) (string, error) { return "", nil }
func (e *scriptedElement) Clear(context.Context) error { return nil }
func (e *scriptedElement) SendKeys(context.Context, string) error { return nil }
func (e *scriptedElement) Click(context.Context) error { return nil }

var fast = Options{Timeout: 200 * time.Millisecond, PollInterval: 10 * time.Millisecond}

func TestUntil_PresentAfterSeveralPolls(t *testing.T) {
	page := &scriptedPage{loc: dom.Name("username"), appearAfter: 3}

	el, err := Until(context.Background(), page, Present(dom.Name("username")), fast)

	require.NoError(t, err)
	assert.NotNil(t, el)
	assert.Equal(t, int32(4), page.queries.Load())
}

func TestUntil_TimeoutIsBounded(t *testing.T) {
	page := &scriptedPage{loc: dom.Query("form#logout-form button"), appearAfter: -1}
	opts := Options{Timeout: 120 * time.Millisecond, PollInterval: 40 * time.Millisecond}

	start := time.Now()
	_, err := Until(context.Background(), page, Present(page.loc), opts)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrElementNotFound))
	assert.GreaterOrEqual(t, elapsed, opts.Timeout)
	assert.Less(t, elapsed, opts.Timeout+opts.PollInterval+20*time.Millisecond)

	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Contains(t, nf.Condition, `css="form#logout-form button"`)
	require.NotNil(t, nf.Snapshot)
	assert.Equal(t, "Scripted", nf.Snapshot.Title)
	assert.Equal(t, "http://app.test/admin/", nf.Snapshot.URL)
}

func TestUntil_SlowSnapshotKeepsTheBound(t *testing.T) {
	page := &scriptedPage{loc: dom.ID("user-tools"), appearAfter: -1, shotDelay: 2 * time.Second}
	opts := Options{Timeout: 200 * time.Millisecond, PollInterval: 50 * time.Millisecond}

	start := time.Now()
	_, err := Until(context.Background(), page, Present(page.loc), opts)
	wall := time.Since(start)

	require.ErrorIs(t, err, ErrElementNotFound)
	assert.Less(t, wall, opts.Timeout+opts.PollInterval+20*time.Millisecond)

	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	require.NotNil(t, nf.Snapshot)
	// The quick parts are kept, the hung screenshot is reported.
	assert.Equal(t, "Scripted", nf.Snapshot.Title)
	assert.Nil(t, nf.Snapshot.Screenshot)
	require.NotEmpty(t, nf.Snapshot.Problems)
	assert.Contains(t, nf.Snapshot.Problems[len(nf.Snapshot.Problems)-1], "deadline exceeded")
}

func TestUntil_ClickableRequiresEnabled(t *testing.T) {
	page := &scriptedPage{loc: dom.Name("_save"), disabled: true}

	_, err := Until(context.Background(), page, Clickable(page.loc), fast)
	assert.ErrorIs(t, err, ErrElementNotFound)

	page.disabled = false
	el, err := Until(context.Background(), page, Clickable(page.loc), fast)
	require.NoError(t, err)
	assert.NotNil(t, el)
}

func TestUntil_VisibleIgnoresHidden(t *testing.T) {
	page := &scriptedPage{loc: dom.ID("id_is_staff"), hidden: true}

	_, err := Until(context.Background(), page, Visible(page.loc), fast)
	assert.ErrorIs(t, err, ErrElementNotFound)

	// Presence does not care about rendering.
	_, err = Until(context.Background(), page, Present(page.loc), fast)
	assert.NoError(t, err)
}

func TestUntil_AbsentAndText(t *testing.T) {
	page := &scriptedPage{loc: dom.ID("login-form"), appearAfter: -1, text: "Your password was changed."}

	_, err := Until(context.Background(), page, All(Absent(page.loc), TextPresent("password was changed")), fast)
	assert.NoError(t, err)

	_, err = Until(context.Background(), page, TextPresent("Log in again"), fast)
	assert.ErrorIs(t, err, ErrElementNotFound)
}

func TestUntilAny_ReportsWhichConditionHeld(t *testing.T) {
	page := &scriptedPage{loc: dom.Query(".errornote"), text: "Please correct the error below."}

	idx, _, err := UntilAny(context.Background(), page, fast,
		TextPresent("Your password was changed."),
		Present(dom.Query(".errornote")),
	)

	require.NoError(t, err)
	assert.Equal(t, 1, idx)
}

func TestUntil_StaleIsRetriedOtherErrorsAbort(t *testing.T) {
	page := &scriptedPage{loc: dom.Name("username"), queryErr: dom.ErrStaleElement}
	_, err := Until(context.Background(), page, Present(page.loc), fast)
	assert.ErrorIs(t, err, ErrElementNotFound)
	assert.Greater(t, page.queries.Load(), int32(2))

	boom := errors.New("target crashed")
	page = &scriptedPage{loc: dom.Name("username"), queryErr: boom}
	_, err = Until(context.Background(), page, Present(page.loc), fast)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrElementNotFound)
	assert.Equal(t, int32(1), page.queries.Load())
}

func TestUntil_ParentCancellation(t *testing.T) {
	page := &scriptedPage{loc: dom.Name("username"), appearAfter: -1}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := Until(ctx, page, Present(page.loc), Options{Timeout: time.Second, PollInterval: 10 * time.Millisecond})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrElementNotFound)
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{}.withDefaults()
	assert.Equal(t, DefaultTimeout, o.Timeout)
	assert.Equal(t, DefaultPollInterval, o.PollInterval)
}
