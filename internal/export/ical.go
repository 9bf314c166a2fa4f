// Package export renders a user's records in interchange formats that
// calendar and address book clients can import.
package export

import (
	"fmt"
	"strings"
	"time"

	"gitea.jw6.us/james/crmdesk/internal/store"
)

const prodID = "-//crmdesk//EN"

// Calendar builds an iCalendar feed with one all-day VEVENT per event.
// Events whose date is not YYYY-MM-DD are skipped.
func Calendar(events []store.Event, now time.Time) string {
	var sb strings.Builder
	writeLine(&sb, "BEGIN:VCALENDAR")
	writeLine(&sb, "VERSION:2.0")
	writeLine(&sb, "PRODID:"+prodID)
	writeLine(&sb, "CALSCALE:GREGORIAN")
	for _, ev := range events {
		lines, ok := eventComponent(ev, now)
		if !ok {
			continue
		}
		writeLine(&sb, "BEGIN:VEVENT")
		for _, line := range lines {
			writeLine(&sb, line)
		}
		writeLine(&sb, "END:VEVENT")
	}
	writeLine(&sb, "END:VCALENDAR")
	return sb.String()
}

func eventComponent(ev store.Event, now time.Time) ([]string, bool) {
	day, err := time.Parse("2006-01-02", strings.TrimSpace(ev.Date))
	if err != nil {
		return nil, false
	}

	lines := []string{
		"UID:" + ev.ID + "@crmdesk",
		"DTSTAMP:" + now.UTC().Format("20060102T150405Z"),
		"DTSTART;VALUE=DATE:" + day.Format("20060102"),
		// DTEND is exclusive for all-day events.
		"DTEND;VALUE=DATE:" + day.AddDate(0, 0, 1).Format("20060102"),
		"SUMMARY:" + EscapeText(ev.Title),
	}
	if !ev.CreatedAt.IsZero() {
		lines = append(lines, "CREATED:"+ev.CreatedAt.UTC().Format("20060102T150405Z"))
	}
	if ev.Type != "" {
		lines = append(lines, "CATEGORIES:"+EscapeText(strings.ToUpper(ev.Type)))
	}
	if ev.Type == "deadline" {
		lines = append(lines, "TRANSP:TRANSPARENT")
	}
	return lines, true
}

// EscapeText escapes a TEXT value for iCalendar and vCard content lines.
func EscapeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, ";", "\\;")
	s = strings.ReplaceAll(s, ",", "\\,")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return stripControl(s)
}

func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
}

// writeLine writes a CRLF-terminated content line, folded so no physical
// line exceeds 75 octets and no UTF-8 sequence is split.
func writeLine(sb *strings.Builder, line string) {
	limit := 75
	for len(line) > limit {
		cut := limit
		for cut > 0 && !isRuneStart(line[cut]) {
			cut--
		}
		fmt.Fprintf(sb, "%s\r\n ", line[:cut])
		line = line[cut:]
		// Continuation lines spend one octet on the leading space.
		limit = 74
	}
	sb.WriteString(line)
	sb.WriteString("\r\n")
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
