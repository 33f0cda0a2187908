package content

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// IsHTML reports whether s is an HTML document rather than OCR text. Only a
// leading doctype or <html> tag counts; markup inside OCR text does not.
func IsHTML(s string) bool {
	head := strings.TrimLeft(s, " \t\r\n\ufeff")
	if len(head) > 16 {
		head = head[:16]
	}
	head = strings.ToLower(head)
	return strings.HasPrefix(head, "<!doctype html") ||
		strings.HasPrefix(head, "<html")
}

// HTMLText extracts the visible text of an HTML document, one block element
// per line.
func HTMLText(s string) (string, error) {
	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	var lines []string
	var cur strings.Builder
	flush := func() {
		if t := strings.Join(strings.Fields(cur.String()), " "); t != "" {
			lines = append(lines, t)
		}
		cur.Reset()
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			cur.WriteString(n.Data)
			cur.WriteByte(' ')
			return
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "head", "noscript", "template":
				return
			}
		}

		block := n.Type == html.ElementNode && isBlock(n.Data)
		if block {
			flush()
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			flush()
		}
	}
	walk(doc)
	flush()

	return strings.Join(lines, "\n"), nil
}

func isBlock(tag string) bool {
	switch tag {
	case "p", "div", "br", "li", "tr", "td", "th", "table",
		"h1", "h2", "h3", "h4", "h5", "h6",
		"blockquote", "pre", "section", "article", "header", "footer":
		return true
	}
	return false
}
