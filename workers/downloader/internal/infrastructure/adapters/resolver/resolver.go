package resolver

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var ErrNoZipLink = errors.New("no zip link on download page")

var (
	styledLink = regexp.MustCompile(`font-size.*color`)
	bareZipURL = regexp.MustCompile(`(?i)https?://[^\s<>"']+\.zip`)
)

// ZipLinkResolver finds the archive link on a report's download page.
type ZipLinkResolver struct{}

func NewZipLinkResolver() *ZipLinkResolver {
	return &ZipLinkResolver{}
}

// ResolveZipURL tries, in order: an anchor whose href ends in .zip, a styled
// anchor mentioning .zip in href or text, any anchor whose text mentions
// .zip, and finally a bare zip URL anywhere in the markup. Relative links
// are resolved against pageURL.
func (r *ZipLinkResolver) ResolveZipURL(body []byte, pageURL string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to parse download page: %w", err)
	}

	var href string
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		h, _ := s.Attr("href")
		if strings.HasSuffix(strings.ToLower(strings.TrimSpace(h)), ".zip") {
			href = h
			return false
		}
		return true
	})

	if href == "" {
		doc.Find("a[style]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			style, _ := s.Attr("style")
			if !styledLink.MatchString(style) {
				return true
			}
			h, _ := s.Attr("href")
			if mentionsZip(h) || mentionsZip(s.Text()) {
				href = h
				return false
			}
			return true
		})
	}

	if href == "" {
		doc.Find("a").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			h, ok := s.Attr("href")
			if ok && strings.TrimSpace(h) != "" && mentionsZip(s.Text()) {
				href = h
				return false
			}
			return true
		})
	}

	if href == "" {
		if match := bareZipURL.Find(body); match != nil {
			return string(match), nil
		}
		return "", ErrNoZipLink
	}

	return absolute(strings.TrimSpace(href), pageURL)
}

func mentionsZip(s string) bool {
	return strings.Contains(strings.ToLower(s), ".zip")
}

func absolute(href, pageURL string) (string, error) {
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("invalid zip link %q: %w", href, err)
	}
	if pageURL == "" {
		return ref.String(), nil
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("invalid page url %q: %w", pageURL, err)
	}
	return base.ResolveReference(ref).String(), nil
}
