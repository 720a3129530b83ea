package board

import (
	"regexp"
	"strings"
)

// Mention is a user reference embedded in comment text as @[Display](userID).
// Start and End are byte offsets of the whole marker in the source text.
type Mention struct {
	Start   int
	End     int
	UserID  string
	Display string
}

var mentionPattern = regexp.MustCompile(`@\[([^\]]+)\]\(([^)\s]+)\)`)

// ParseMentions returns the mentions found in text, in order.
func ParseMentions(text string) []Mention {
	matches := mentionPattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make([]Mention, 0, len(matches))
	for _, m := range matches {
		out = append(out, Mention{
			Start:   m[0],
			End:     m[1],
			Display: text[m[2]:m[3]],
			UserID:  text[m[4]:m[5]],
		})
	}
	return out
}

// MentionedUsers returns the distinct user ids referenced in text.
func MentionedUsers(text string) []string {
	var ids []string
	seen := map[string]bool{}
	for _, m := range ParseMentions(text) {
		if !seen[m.UserID] {
			seen[m.UserID] = true
			ids = append(ids, m.UserID)
		}
	}
	return ids
}

// RenderMentions replaces every marker with "@Display".
func RenderMentions(text string) string {
	mentions := ParseMentions(text)
	if len(mentions) == 0 {
		return text
	}
	var b strings.Builder
	last := 0
	for _, m := range mentions {
		b.WriteString(text[last:m.Start])
		b.WriteString("@")
		b.WriteString(m.Display)
		last = m.End
	}
	b.WriteString(text[last:])
	return b.String()
}

// FormatMention builds the marker for a user.
func FormatMention(u UserRef) string {
	name := u.Name
	if name == "" {
		name = u.Email
	}
	return "@[" + name + "](" + u.ID + ")"
}
