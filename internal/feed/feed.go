// Package feed reads RSS 2.0 and Atom documents through a forward-only
// pull cursor. The document is tokenized lazily and never materialized:
// only the entry currently being decoded is held in memory, so arbitrarily
// large feeds stream in constant space.
package feed

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// Kind identifies the syndication dialect of a document.
type Kind int

const (
	KindUnknown Kind = iota
	KindRSS
	KindAtom
)

func (k Kind) String() string {
	switch k {
	case KindRSS:
		return "rss"
	case KindAtom:
		return "atom"
	}
	return "unknown"
}

// ErrUnsupportedFormat is returned when the document root is neither
// <rss> nor <feed>.
var ErrUnsupportedFormat = errors.New("unsupported feed format")

// FeedMeta describes the feed itself, collected from the header elements
// that precede the first entry.
type FeedMeta struct {
	Title       string
	Link        string
	Description string
	Updated     time.Time
}

// Entry is one feed item. Timestamps that fail to parse are left zero
// rather than failing the entry.
type Entry struct {
	Title      string
	ID         string
	Link       string
	Summary    string
	Published  time.Time
	Categories []string
}

// Cursor is a single-pass reader over one feed document. Create it with
// NewCursor; nothing is read until Meta or Next is called.
type Cursor struct {
	dec     *xml.Decoder
	kind    Kind
	meta    FeedMeta
	scanned bool
	scanErr error

	// pending holds the start element of the next entry when the header
	// scan ran into it. The decoder is positioned just inside it.
	pending *xml.StartElement
}

// NewCursor creates a cursor reading from r.
func NewCursor(r io.Reader) *Cursor {
	return &Cursor{dec: xml.NewDecoder(r)}
}

// Kind reports the detected dialect. It stays KindUnknown until the first
// call to Meta or Next.
func (c *Cursor) Kind() Kind { return c.kind }

// Meta returns the feed header, reading up to the first entry if needed.
func (c *Cursor) Meta() (*FeedMeta, error) {
	if err := c.scanHeader(); err != nil {
		return nil, err
	}
	m := c.meta
	return &m, nil
}

// Next returns the next entry in document order. It returns io.EOF after
// the last entry; any other error means the document is malformed.
func (c *Cursor) Next() (*Entry, error) {
	if err := c.scanHeader(); err != nil {
		return nil, err
	}

	start, err := c.nextEntryStart()
	if err != nil {
		return nil, err
	}

	if c.kind == KindRSS {
		var item rssItem
		if err := c.dec.DecodeElement(&item, start); err != nil {
			return nil, c.wrap(err)
		}
		return item.entry(), nil
	}
	var entry atomEntry
	if err := c.dec.DecodeElement(&entry, start); err != nil {
		return nil, c.wrap(err)
	}
	return entry.entry(), nil
}

// scanHeader detects the dialect and collects the header, stopping at the
// first entry element. It runs once; later calls observe the same result.
func (c *Cursor) scanHeader() error {
	if c.scanned {
		return c.scanErr
	}
	c.scanned = true
	c.scanErr = c.scan()
	return c.scanErr
}

func (c *Cursor) scan() error {
	root, err := c.firstStart()
	if err != nil {
		return err
	}
	switch root.Name.Local {
	case "rss":
		c.kind = KindRSS
		return c.scanRSS()
	case "feed":
		c.kind = KindAtom
		return c.scanAtom()
	default:
		return fmt.Errorf("feed: root element <%s>: %w", root.Name.Local, ErrUnsupportedFormat)
	}
}

func (c *Cursor) firstStart() (*xml.StartElement, error) {
	for {
		tok, err := c.dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("feed: no root element: %w", ErrUnsupportedFormat)
			}
			return nil, c.wrap(err)
		}
		if se, ok := tok.(xml.StartElement); ok {
			return &se, nil
		}
	}
}

// scanRSS walks the children of <channel>, capturing header fields until
// the first <item>.
func (c *Cursor) scanRSS() error {
	for {
		tok, err := c.dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return c.wrap(err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if se.Name.Local == "channel" {
			break
		}
		if err := c.dec.Skip(); err != nil {
			return c.wrap(err)
		}
	}

	for {
		tok, err := c.dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return c.wrap(err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "item":
				se := t
				c.pending = &se
				return nil
			case "title":
				if err := c.captureText(&c.meta.Title, &t); err != nil {
					return err
				}
			case "link":
				if err := c.captureText(&c.meta.Link, &t); err != nil {
					return err
				}
			case "description":
				if err := c.captureText(&c.meta.Description, &t); err != nil {
					return err
				}
			case "lastBuildDate", "pubDate":
				var raw string
				if err := c.text(&raw, &t); err != nil {
					return err
				}
				if c.meta.Updated.IsZero() {
					c.meta.Updated = parseRSSTime(raw)
				}
			default:
				if err := c.dec.Skip(); err != nil {
					return c.wrap(err)
				}
			}
		case xml.EndElement:
			if t.Name.Local == "channel" {
				return nil
			}
		}
	}
}

// scanAtom walks the children of <feed>, capturing header fields until the
// first <entry>.
func (c *Cursor) scanAtom() error {
	for {
		tok, err := c.dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return c.wrap(err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "entry":
				se := t
				c.pending = &se
				return nil
			case "title":
				if err := c.captureText(&c.meta.Title, &t); err != nil {
					return err
				}
			case "subtitle":
				if err := c.captureText(&c.meta.Description, &t); err != nil {
					return err
				}
			case "link":
				var rel, href string
				for _, a := range t.Attr {
					switch a.Name.Local {
					case "rel":
						rel = a.Value
					case "href":
						href = a.Value
					}
				}
				if href != "" && (rel == "" || rel == "alternate") && c.meta.Link == "" {
					c.meta.Link = href
				}
				if err := c.dec.Skip(); err != nil {
					return c.wrap(err)
				}
			case "updated":
				var raw string
				if err := c.text(&raw, &t); err != nil {
					return err
				}
				if c.meta.Updated.IsZero() {
					c.meta.Updated = parseAtomTime(raw)
				}
			default:
				if err := c.dec.Skip(); err != nil {
					return c.wrap(err)
				}
			}
		case xml.EndElement:
			if t.Name.Local == "feed" {
				return nil
			}
		}
	}
}

// nextEntryStart advances to the start element of the next entry, consuming
// any non-entry subtrees in between.
func (c *Cursor) nextEntryStart() (*xml.StartElement, error) {
	if c.pending != nil {
		start := c.pending
		c.pending = nil
		return start, nil
	}
	for {
		tok, err := c.dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, c.wrap(err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if c.isEntryElement(se.Name.Local) {
			return &se, nil
		}
		if err := c.dec.Skip(); err != nil {
			return nil, c.wrap(err)
		}
	}
}

func (c *Cursor) isEntryElement(local string) bool {
	if c.kind == KindRSS {
		return local == "item"
	}
	return local == "entry"
}

// text decodes the element's character data into dst.
func (c *Cursor) text(dst *string, se *xml.StartElement) error {
	if err := c.dec.DecodeElement(dst, se); err != nil {
		return c.wrap(err)
	}
	return nil
}

// captureText sets dst to the element's trimmed text unless dst is already
// set. Namespaced extension elements sharing a local name cannot clobber a
// value the feed's own element provided first.
func (c *Cursor) captureText(dst *string, se *xml.StartElement) error {
	var raw string
	if err := c.text(&raw, se); err != nil {
		return err
	}
	if *dst == "" {
		*dst = strings.TrimSpace(raw)
	}
	return nil
}

func (c *Cursor) wrap(err error) error {
	return fmt.Errorf("feed: parse error at byte %d: %w", c.dec.InputOffset(), err)
}

var rssTimeLayouts = []string{time.RFC1123Z, time.RFC1123}

func parseRSSTime(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	for _, layout := range rssTimeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}

func parseAtomTime(raw string) time.Time {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}
	}
	return t
}

type rssItem struct {
	Title       string   `xml:"title"`
	GUID        string   `xml:"guid"`
	Link        string   `xml:"link"`
	Description string   `xml:"description"`
	PubDate     string   `xml:"pubDate"`
	Categories  []string `xml:"category"`
}

func (i *rssItem) entry() *Entry {
	id := strings.TrimSpace(i.GUID)
	link := strings.TrimSpace(i.Link)
	if id == "" {
		id = link
	}
	var cats []string
	for _, cat := range i.Categories {
		if term := strings.TrimSpace(cat); term != "" {
			cats = append(cats, term)
		}
	}
	return &Entry{
		Title:      strings.TrimSpace(i.Title),
		ID:         id,
		Link:       link,
		Summary:    strings.TrimSpace(i.Description),
		Published:  parseRSSTime(i.PubDate),
		Categories: cats,
	}
}

type atomEntry struct {
	Title      string         `xml:"title"`
	ID         string         `xml:"id"`
	Links      []atomLink     `xml:"link"`
	Summary    string         `xml:"summary"`
	Content    string         `xml:"content"`
	Published  string         `xml:"published"`
	Updated    string         `xml:"updated"`
	Categories []atomCategory `xml:"category"`
}

type atomLink struct {
	Rel  string `xml:"rel,attr"`
	Href string `xml:"href,attr"`
}

type atomCategory struct {
	Term string `xml:"term,attr"`
}

func (e *atomEntry) entry() *Entry {
	published := parseAtomTime(e.Published)
	if published.IsZero() {
		published = parseAtomTime(e.Updated)
	}
	summary := strings.TrimSpace(e.Summary)
	if summary == "" {
		summary = strings.TrimSpace(e.Content)
	}
	var cats []string
	for _, cat := range e.Categories {
		if term := strings.TrimSpace(cat.Term); term != "" {
			cats = append(cats, term)
		}
	}
	return &Entry{
		Title:      strings.TrimSpace(e.Title),
		ID:         strings.TrimSpace(e.ID),
		Link:       pickAtomLink(e.Links),
		Summary:    summary,
		Published:  published,
		Categories: cats,
	}
}

// pickAtomLink prefers the alternate link, then any link with an href.
func pickAtomLink(links []atomLink) string {
	var fallback string
	for _, l := range links {
		if l.Href == "" {
			continue
		}
		if l.Rel == "" || l.Rel == "alternate" {
			return l.Href
		}
		if fallback == "" {
			fallback = l.Href
		}
	}
	return fallback
}
