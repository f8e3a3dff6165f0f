package scrub

import (
	"regexp"
	"strings"
)

var (
	commentPattern      = regexp.MustCompile(`(?s)<!--.*?-->`)
	malformedComment    = regexp.MustCompile(`<!-{2,}>`)
	unterminatedComment = regexp.MustCompile(`(?s)<!--.*$`)
)

// stripComments removes structural comments, including malformed and
// unterminated variants, repeating until a fixpoint so markers that
// reappear after a removal pass cannot survive.
func stripComments(t string) string {
	for {
		out := commentPattern.ReplaceAllString(t, "")
		out = malformedComment.ReplaceAllString(out, "")
		out = unterminatedComment.ReplaceAllString(out, "")
		if out == t {
			return out
		}
		t = out
	}
}

// allowedInlineTags is the set of markup tags that render harmlessly on
// the platform and are left alone by inertTags.
func allowedInlineTags() map[string]struct{} {
	tags := []string{
		"b", "blockquote", "br", "code", "details", "em",
		"h1", "h2", "h3", "h4", "h5", "h6", "hr", "i", "li",
		"ol", "p", "pre", "strong", "sub", "summary", "sup",
		"table", "tbody", "td", "th", "thead", "tr", "ul",
	}
	set := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		set[tag] = struct{}{}
	}
	return set
}

var (
	tagPattern   = regexp.MustCompile(`(?s)</?([A-Za-z][A-Za-z0-9]*)[^>]*>`)
	cdataPattern = regexp.MustCompile(`(?s)<!\[CDATA\[(.*?)\]\]>`)
)

// inertTags converts markup tags to a parenthesized inert form, keeping
// only the allow-listed safe tags. CDATA sections get the same
// treatment: content is processed like ordinary text and the section
// markers themselves become inert.
func (s *Scrubber) inertTags(t string) string {
	t = cdataPattern.ReplaceAllStringFunc(t, func(m string) string {
		content := cdataPattern.FindStringSubmatch(m)[1]
		return "(![CDATA[" + s.convertTags(content) + "]])"
	})
	// Unterminated CDATA markers become inert on their own
	t = strings.ReplaceAll(t, "<![CDATA[", "(![CDATA[")
	t = strings.ReplaceAll(t, "]]>", "]])")
	return s.convertTags(t)
}

func (s *Scrubber) convertTags(t string) string {
	return tagPattern.ReplaceAllStringFunc(t, func(m string) string {
		name := strings.ToLower(tagPattern.FindStringSubmatch(m)[1])
		if _, ok := s.allowedTags[name]; ok {
			return m
		}
		return "(" + m[1:len(m)-1] + ")"
	})
}

// templateEscaper rewrites template-engine delimiters as HTML entities.
// The canonicalize stage decodes entities before any matching, so text
// that already went through the pipeline escapes to the same fixpoint.
var templateEscaper = strings.NewReplacer(
	"{{", "&#123;&#123;",
	"}}", "&#125;&#125;",
	"{%", "&#123;%",
	"%}", "%&#125;",
	"<%", "&lt;%",
	"%>", "%&gt;",
)

// escapeTemplates defuses downstream template evaluation: double-brace,
// directive-brace, and embedded-scripting delimiters all lose their
// opening characters to entity escapes.
func escapeTemplates(t string) string {
	return templateEscaper.Replace(t)
}

// repairFences appends a closing code fence when the text has an odd
// number of fence markers, either from the source or from an earlier
// truncation.
func repairFences(t string) string {
	if strings.Count(t, "```")%2 == 1 {
		return t + "\n```"
	}
	return t
}
