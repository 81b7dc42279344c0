// Package card builds caption card markup and renders it to PNG.
package card

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

//go:embed templates/card.html
var cardTemplate string

// Viewport of the rendered card in pixels.
const (
	Width  = 600
	Height = 400
)

// Card is the content shown on one caption card: post-level chrome plus
// the text of a single segment.
type Card struct {
	Subreddit string
	Author    string
	Title     string
	Text      string
	Upvotes   int
	Comments  int
}

// Markup fills the card template. All values are set as DOM text, so
// they are escaped.
func Markup(c Card) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(cardTemplate))
	if err != nil {
		return "", fmt.Errorf("parse card template: %w", err)
	}

	doc.Find(".community").SetText("r/" + c.Subreddit)
	if c.Author != "" {
		doc.Find(".author").SetText("u/" + c.Author)
	} else {
		doc.Find(".author").Remove()
	}
	doc.Find(".title").SetText(c.Title)
	doc.Find(".body").SetText(c.Text)
	doc.Find(".upvotes").SetText(FormatCount(c.Upvotes) + " upvotes")
	doc.Find(".comments").SetText(FormatCount(c.Comments) + " comments")

	html, err := goquery.OuterHtml(doc.Selection)
	if err != nil {
		return "", fmt.Errorf("render card markup: %w", err)
	}
	return html, nil
}

// FormatCount abbreviates counts the way feed UIs do: 950, 1.2k, 12k, 3.4m.
func FormatCount(n int) string {
	switch {
	case n < 0:
		return "0"
	case n < 1000:
		return fmt.Sprintf("%d", n)
	case n < 10000:
		return trimZero(fmt.Sprintf("%.1f", float64(n)/1000)) + "k"
	case n < 1000000:
		return fmt.Sprintf("%dk", n/1000)
	default:
		return trimZero(fmt.Sprintf("%.1f", float64(n)/1000000)) + "m"
	}
}

func trimZero(s string) string {
	return strings.TrimSuffix(s, ".0")
}
