package services

import (
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"github.com/VanceGC/BlogMagic-sub000/models"
)

// SEOCheck is one rule of the SEO heuristic.
type SEOCheck struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Points int    `json:"points"`
	Max    int    `json:"max"`
	Hint   string `json:"hint,omitempty"`
}

// SEOReport is the outcome of ScoreSEO. Score is the sum of the points of
// all checks, between 0 and 100.
type SEOReport struct {
	Score     int        `json:"score"`
	WordCount int        `json:"wordCount"`
	Keyword   string     `json:"keyword,omitempty"`
	Density   float64    `json:"density"`
	Checks    []SEOCheck `json:"checks"`
}

// ScoreSEO rates a post with simple on-page heuristics: title and meta
// description length, placement of the primary keyword, length of the body,
// use of sub-headings and keyword density.
func ScoreSEO(post *models.Post) SEOReport {
	doc, err := parseHTML(post.Content)
	text := ""
	headings := 0
	firstParagraph := ""
	if err == nil {
		text = doc.Text()
		headings = doc.Find("h2, h3").Length()
		firstParagraph = doc.Find("p").First().Text()
	}
	if firstParagraph == "" {
		firstParagraph = firstWords(text, 100)
	}

	words := tokenize(text)
	keyword := ""
	if len(post.Keywords) > 0 {
		keyword = strings.ToLower(strings.TrimSpace(post.Keywords[0]))
	}

	title := post.SEOTitle
	if title == "" {
		title = post.Title
	}
	titleLen := len([]rune(title))
	descLen := len([]rune(post.SEODescription))

	density := 0.0
	if keyword != "" && len(words) > 0 {
		occurrences := strings.Count(strings.ToLower(strings.Join(words, " ")), keyword)
		density = float64(occurrences*len(strings.Fields(keyword))) / float64(len(words)) * 100
	}

	report := SEOReport{WordCount: len(words), Keyword: keyword, Density: density}
	add := func(name string, max int, passed bool, hint string) {
		c := SEOCheck{Name: name, Passed: passed, Max: max}
		if passed {
			c.Points = max
		} else {
			c.Hint = hint
		}
		report.Checks = append(report.Checks, c)
		report.Score += c.Points
	}

	add("title_length", 15, titleLen >= 30 && titleLen <= 60, "Keep the title between 30 and 60 characters")
	add("meta_description_length", 15, descLen >= 120 && descLen <= 160, "Keep the meta description between 120 and 160 characters")
	add("keyword_in_title", 15, keyword != "" && containsFold(title, keyword), "Use the primary keyword in the title")
	add("keyword_in_introduction", 10, keyword != "" && containsFold(firstParagraph, keyword), "Mention the primary keyword in the first paragraph")
	add("keyword_in_description", 10, keyword != "" && containsFold(post.SEODescription, keyword), "Mention the primary keyword in the meta description")
	add("content_length", 15, len(words) >= 800, "Write at least 800 words")
	add("headings", 10, headings >= 2, "Structure the article with at least two sub-headings")
	add("keyword_density", 10, density >= 0.5 && density <= 2.5, "Aim for a keyword density between 0.5% and 2.5%")

	return report
}

// PlainText strips markup from an HTML fragment.
func PlainText(html string) string {
	doc, err := parseHTML(html)
	if err != nil {
		return html
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// parseHTML pads tags with a space so text of adjacent block elements does
// not run together in Text().
func parseHTML(html string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(strings.ReplaceAll(html, "<", " <")))
}

func tokenize(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '\''
	})
}

func firstWords(text string, n int) string {
	fields := strings.Fields(text)
	if len(fields) > n {
		fields = fields[:n]
	}
	return strings.Join(fields, " ")
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
