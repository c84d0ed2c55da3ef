package inbox

import (
	"bytes"
	"encoding/base64"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// NormalizeBody flattens a part tree into plain text. Leaves are visited
// depth-first in tree order; each is transport-decoded, parsed as HTML and
// reduced to its text nodes. Leaves that fail to decode or parse contribute
// nothing.
func NormalizeBody(root Part) string {
	var texts []string
	collectText(root, &texts)
	return strings.Join(texts, " ")
}

func collectText(p Part, texts *[]string) {
	if p.IsContainer() {
		for _, child := range p.Children {
			collectText(child, texts)
		}
		return
	}
	if len(p.Data) == 0 {
		return
	}

	data, err := decodePart(p.Data, p.Encoding)
	if err != nil {
		return
	}
	text, err := htmlText(data)
	if err != nil || text == "" {
		return
	}
	*texts = append(*texts, text)
}

// decodePart undoes the transport encoding of leaf data
func decodePart(data []byte, enc Encoding) ([]byte, error) {
	switch enc {
	case EncodingBase64URL:
		s := strings.TrimSpace(string(data))
		s = strings.TrimRight(s, "=")
		return base64.RawURLEncoding.DecodeString(s)
	default:
		return data, nil
	}
}

// htmlText returns the visible text of an HTML (or plain text) document:
// every text node trimmed, empty ones dropped, joined by single spaces.
func htmlText(data []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", err
	}

	var parts []string
	var walk func(s *goquery.Selection)
	walk = func(s *goquery.Selection) {
		s.Contents().Each(func(_ int, c *goquery.Selection) {
			switch goquery.NodeName(c) {
			case "#text":
				if t := strings.TrimSpace(c.Text()); t != "" {
					parts = append(parts, t)
				}
			case "#comment", "script", "style", "noscript", "template":
				// not rendered
			default:
				walk(c)
			}
		})
	}
	walk(doc.Selection)

	return strings.Join(parts, " "), nil
}
