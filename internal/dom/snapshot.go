package dom

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const captureTimeout = 5 * time.Second

// Snapshot is the state of a page at the moment something went wrong.
type Snapshot struct {
	URL        string    `json:"url"`
	Title      string    `json:"title,omitempty"`
	HTML       string    `json:"-"`
	Simplified string    `json:"simplified,omitempty"`
	Screenshot []byte    `json:"-"`
	CapturedAt time.Time `json:"captured_at"`
	// Problems lists the parts of the capture that could not be taken.
	Problems []string `json:"problems,omitempty"`
}

// Capture records the current page state. It is best effort: a failing part
// is noted in Problems and the rest is still returned. Capture runs even when
// ctx is already done, since failures are usually diagnosed after a timeout.
func Capture(ctx context.Context, p Page) *Snapshot {
	return CaptureUntil(ctx, p, time.Now().Add(captureTimeout))
}

// CaptureUntil is Capture with a hard deadline. It returns by the deadline
// even if the page does not honour cancellation, keeping whatever parts were
// taken by then.
func CaptureUntil(ctx context.Context, p Page, deadline time.Time) *Snapshot {
	ctx, cancel := context.WithDeadline(context.WithoutCancel(ctx), deadline)
	defer cancel()

	snap := &Snapshot{CapturedAt: time.Now().UTC()}
	// Buffered for every part so an abandoned worker never blocks.
	parts := make(chan func(*Snapshot), 3)
	go func() {
		defer close(parts)

		url, locErr := p.Location(ctx)
		parts <- func(s *Snapshot) {
			s.URL = url
			if locErr != nil {
				s.Problems = append(s.Problems, "location: "+locErr.Error())
			}
		}

		markup, htmlErr := p.HTML(ctx)
		var title, simplified string
		var simplifyErr error
		if htmlErr == nil {
			title = titleOf(markup)
			simplified, simplifyErr = GetSimplifiedDOM(markup)
		}
		parts <- func(s *Snapshot) {
			if htmlErr != nil {
				s.Problems = append(s.Problems, "html: "+htmlErr.Error())
				return
			}
			s.HTML, s.Title, s.Simplified = markup, title, simplified
			if simplifyErr != nil {
				s.Problems = append(s.Problems, "simplify: "+simplifyErr.Error())
			}
		}

		shot, shotErr := p.Screenshot(ctx)
		parts <- func(s *Snapshot) {
			s.Screenshot = shot
			if shotErr != nil {
				s.Problems = append(s.Problems, "screenshot: "+shotErr.Error())
			}
		}
	}()

	for {
		select {
		case apply, ok := <-parts:
			if !ok {
				return snap
			}
			apply(snap)
		case <-ctx.Done():
			// Parts that made it in time still count.
			for {
				select {
				case apply, ok := <-parts:
					if !ok {
						return snap
					}
					apply(snap)
					continue
				default:
				}
				snap.Problems = append(snap.Problems, "capture: "+ctx.Err().Error())
				return snap
			}
		}
	}
}

func titleOf(markup string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}
