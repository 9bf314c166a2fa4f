package export

import (
	"strings"
	"time"

	"gitea.jw6.us/james/crmdesk/internal/store"
)

// VCards renders contacts as a vCard 3.0 stream.
func VCards(contacts []store.Contact, now time.Time) string {
	var sb strings.Builder
	for _, c := range contacts {
		writeVCard(&sb, c, now)
	}
	return sb.String()
}

func writeVCard(sb *strings.Builder, c store.Contact, now time.Time) {
	first, last := splitName(c.Name)

	writeLine(sb, "BEGIN:VCARD")
	writeLine(sb, "VERSION:3.0")
	writeLine(sb, "PRODID:"+prodID)
	writeLine(sb, "UID:"+c.ID+"@crmdesk")
	writeLine(sb, "FN:"+EscapeText(c.Name))
	// N: Last;First;Middle;Prefix;Suffix
	writeLine(sb, "N:"+EscapeText(last)+";"+EscapeText(first)+";;;")
	if c.Company != "" {
		writeLine(sb, "ORG:"+EscapeText(c.Company))
	}
	if c.Role != "" {
		writeLine(sb, "TITLE:"+EscapeText(c.Role))
	}
	if email := stripControl(strings.TrimSpace(c.Email)); email != "" {
		writeLine(sb, "EMAIL;TYPE=INTERNET:"+email)
	}
	if phone := stripControl(strings.TrimSpace(c.Phone)); phone != "" {
		writeLine(sb, "TEL;TYPE=WORK:"+phone)
	}
	if c.Status != "" {
		writeLine(sb, "CATEGORIES:"+EscapeText(c.Status))
	}
	writeLine(sb, "REV:"+now.UTC().Format("20060102T150405Z"))
	writeLine(sb, "END:VCARD")
}

// splitName treats the last word as the family name.
func splitName(name string) (first, last string) {
	fields := strings.Fields(name)
	switch len(fields) {
	case 0:
		return "", ""
	case 1:
		return fields[0], ""
	default:
		return strings.Join(fields[:len(fields)-1], " "), fields[len(fields)-1]
	}
}
