package ics

import (
	"html"
	"regexp"
	"strings"
)

// Details is what an event description can declare about itself.
//
// Descriptions are written by the venue in the calendar app using a tiny
// line-oriented format:
//
//	Type: Jazz manouche
//	Image: https://example.com/poster.webp
//	ImgAlt: Trio sur scène
//	Desc: Un set swing incandescent.
//
// Keys are case-insensitive and may contain spaces ("Image Alt"). Any line
// that is not "key: value" is prose; prose lines are joined with spaces
// and used as the summary when no Desc line is present. Lines with an
// unknown key are ignored.
type Details struct {
	Category string
	Image    string
	ImageAlt string
	Summary  string
}

var (
	reBreak  = regexp.MustCompile(`(?i)<br\s*/?>|</p>`)
	reAnchor = regexp.MustCompile(`(?i)<a[^>]*href="([^"]+)"[^>]*>[^<]*</a>`)
	reTag    = regexp.MustCompile(`<[^>]+>`)
	reKV     = regexp.MustCompile(`^\s*([A-Za-z ]+)\s*:\s*(.*?)\s*$`)
	reSpaces = regexp.MustCompile(`\s+`)
)

// ParseDescription extracts Details from a raw DESCRIPTION value.
func ParseDescription(raw string) Details {
	var d Details
	if raw == "" {
		return d
	}

	var fallback []string

	for _, line := range strings.Split(normalizeDescription(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		m := reKV.FindStringSubmatch(line)
		if m == nil {
			fallback = append(fallback, line)
			continue
		}

		key := strings.ToLower(reSpaces.ReplaceAllString(m[1], ""))
		value := strings.TrimSpace(m[2])

		switch key {
		case "type":
			d.Category = value
		case "image":
			d.Image = value
		case "imgalt", "imagealt", "imagalt":
			d.ImageAlt = value
		case "desc":
			d.Summary = value
		}
	}

	if d.Summary == "" {
		d.Summary = strings.Join(fallback, " ")
	}
	return d
}

// normalizeDescription turns the HTML-ish text calendar apps store into
// plain lines: ICS escapes and <br>/</p> become newlines, anchors become
// their href, remaining tags are dropped and entities decoded.
func normalizeDescription(raw string) string {
	s := unescapeText(raw)
	s = reBreak.ReplaceAllString(s, "\n")
	s = reAnchor.ReplaceAllString(s, "$1")
	s = reTag.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	return strings.ReplaceAll(s, "\r\n", "\n")
}

// unescapeText reverses RFC 5545 TEXT escaping. It is safe to apply to
// values the parser already unescaped as long as they hold no backslashes.
func unescapeText(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n', 'N':
			b.WriteByte('\n')
		case ',', ';', '\\':
			b.WriteByte(s[i])
		default:
			b.WriteByte('\\')
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
