package extractor

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// extractHTML returns the visible body text and the page title.
func extractHTML(data []byte) (text, title string, err error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", "", err
	}

	title = strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1").First().Text())
	}

	doc.Find("script, style, noscript, nav, footer, header, aside").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	var blocks []string
	doc.Find("body").Find("h1, h2, h3, h4, h5, h6, p, li, pre, blockquote, td").Each(func(i int, s *goquery.Selection) {
		if s.Find("p, li").Length() > 0 {
			return
		}
		if t := strings.TrimSpace(whitespaceRun.ReplaceAllString(s.Text(), " ")); t != "" {
			blocks = append(blocks, t)
		}
	})
	if len(blocks) == 0 {
		body := strings.TrimSpace(whitespaceRun.ReplaceAllString(doc.Find("body").Text(), " "))
		return body, title, nil
	}
	return strings.Join(blocks, "\n"), title, nil
}
