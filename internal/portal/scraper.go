package portal

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Boilerplate headers in message bodies and their bolded replacements,
// one per portal locale
var bodyHeaderReplacer = strings.NewReplacer(
	"Message content", "<b>Original message content:</b>",
	"Treść wiadomości", "<b>Originalna treść wiadomości:</b>",
)

// Scraper reads the portal mailbox of an authenticated session
type Scraper struct {
	session *Session
	relogin func(ctx context.Context) error
	logger  *slog.Logger
}

// newScraper creates a scraper. relogin is called when the portal
// silently dropped the session.
func newScraper(session *Session, relogin func(ctx context.Context) error, logger *slog.Logger) *Scraper {
	return &Scraper{
		session: session,
		relogin: relogin,
		logger:  logger,
	}
}

// HasUnread reports whether the listing contains unread rows. A nil
// listing is fetched from the portal first.
func (s *Scraper) HasUnread(ctx context.Context, listing *goquery.Selection) (bool, error) {
	if !s.session.authenticated {
		return false, notLoggedIn("has unread")
	}

	if listing == nil {
		doc, err := s.fetchListing(ctx)
		if err != nil {
			return false, err
		}
		listing = mailbox(doc)
	}

	return listing.Find(".unread").Length() > 0, nil
}

// FetchUnread returns the unread messages of the mailbox, at most max+1
// of them. A listing without the mailbox table means the portal dropped
// the session: the scraper logs in again and returns no messages.
func (s *Scraper) FetchUnread(ctx context.Context, max int) ([]Message, error) {
	if !s.session.authenticated {
		return nil, notLoggedIn("fetch unread")
	}

	doc, err := s.fetchListing(ctx)
	if err != nil {
		return nil, err
	}

	table := mailbox(doc)
	if table.Length() == 0 {
		return s.recoverSession(ctx)
	}

	hasUnread, err := s.HasUnread(ctx, table)
	if err != nil {
		return nil, err
	}
	if !hasUnread {
		s.logger.Info("No new messages")
		return []Message{}, nil
	}

	// max+1 rows are taken on purpose; callers rely on this boundary
	rows := sliceRows(table.Find(".unread"), 0, max+1)
	return s.collect(ctx, rows)
}

// FetchAll returns the first max messages after the header row,
// regardless of their read state
func (s *Scraper) FetchAll(ctx context.Context, max int) ([]Message, error) {
	if !s.session.authenticated {
		return nil, notLoggedIn("fetch all")
	}

	doc, err := s.fetchListing(ctx)
	if err != nil {
		return nil, err
	}

	if mailbox(doc).Length() == 0 {
		return s.recoverSession(ctx)
	}

	rows := sliceRows(doc.Find("tr"), 1, max+1)
	return s.collect(ctx, rows)
}

func (s *Scraper) recoverSession(ctx context.Context) ([]Message, error) {
	s.logger.Warn("Mailbox missing from listing, probably logged out - logging in again")
	s.session.authenticated = false

	if err := s.relogin(ctx); err != nil {
		return nil, fmt.Errorf("re-login after implicit logout: %w", err)
	}
	return []Message{}, nil
}

func (s *Scraper) fetchListing(ctx context.Context) (*goquery.Document, error) {
	body, err := s.session.fetchPage(ctx, "messages", s.session.config.BaseURL+messagesPath)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse message listing: %w", err)
	}
	return doc, nil
}

// collect turns listing rows into messages, fetching each body.
// Rows without a detail link or with too few cells are skipped.
func (s *Scraper) collect(ctx context.Context, rows *goquery.Selection) ([]Message, error) {
	messages := make([]Message, 0, rows.Length())

	for i := range rows.Nodes {
		row := rows.Eq(i)

		dataURL, ok := row.Attr("data-url")
		if !ok || dataURL == "" {
			s.logger.Warn("Skipping message row without data-url", "row", i)
			continue
		}

		cells := row.Find("td")
		if cells.Length() < 4 {
			s.logger.Warn("Skipping message row with missing columns", "row", i, "columns", cells.Length())
			continue
		}

		msg := Message{
			Sender:  cellText(cells.Eq(1)),
			Subject: cellText(cells.Eq(2)),
			Date:    cellText(cells.Eq(3)),
			URL:     s.session.config.BaseURL + dataURL,
		}

		body, err := s.fetchBody(ctx, msg.URL)
		if err != nil {
			return nil, err
		}
		msg.Body = body

		messages = append(messages, msg)
	}

	return messages, nil
}

// fetchBody returns the HTML of the message body on a detail page: the
// last div inside the first element of #content
func (s *Scraper) fetchBody(ctx context.Context, messageURL string) (string, error) {
	body, err := s.session.fetchPage(ctx, "message", messageURL)
	if err != nil {
		return "", err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to parse message page: %w", err)
	}

	last := doc.Find("#content").First().Children().First().Find("div").Last()
	if last.Length() == 0 {
		s.logger.Warn("Message body not found", "url", messageURL)
		return "", nil
	}

	html, err := goquery.OuterHtml(last)
	if err != nil {
		return "", fmt.Errorf("failed to render message body: %w", err)
	}

	return bodyHeaderReplacer.Replace(html), nil
}

func mailbox(doc *goquery.Document) *goquery.Selection {
	return doc.Find(".table-mailbox").First()
}

func cellText(cell *goquery.Selection) string {
	return strings.TrimSpace(cell.Text())
}

// sliceRows is Selection.Slice with bounds clamped to the selection
func sliceRows(sel *goquery.Selection, start, end int) *goquery.Selection {
	n := sel.Length()
	if end > n {
		end = n
	}
	if end < 0 {
		end = 0
	}
	if start > end {
		start = end
	}
	return sel.Slice(start, end)
}
