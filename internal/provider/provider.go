// Package provider resolves decoded barcode payloads against the known
// ticket-issuer grammars and validates their check digits.
package provider

import (
	"fmt"
	"regexp"
	"strings"
)

// ID identifies a ticket-issuing organization.
type ID string

const (
	SevenTicket  ID = "seven_ticket"
	TicketPia    ID = "ticket_pia"
	LawsonTicket ID = "lawson_ticket"
	Eplus        ID = "eplus"
	CNPlayguide  ID = "cnplayguide"
	// None means the payload matched no known issuer. A valid barcode with
	// an unknown issuer is still a successful decode.
	None ID = ""
)

// Match is the outcome of resolving and parsing one decoded value.
type Match struct {
	Provider      ID                `json:"provider"`
	Fields        map[string]string `json:"parsed_fields"`
	ChecksumValid bool              `json:"checksum_valid"`
}

// resolveOrder is the fixed precedence when no hint narrows the search.
var resolveOrder = []ID{SevenTicket, TicketPia, LawsonTicket, Eplus, CNPlayguide}

var (
	sevenPattern       = regexp.MustCompile(`^(23\d{6}|\d{6}) (\d{8}) (\d{3})$`)
	piaPattern         = regexp.MustCompile(`^64\d{11}$`)
	lawsonEANPattern   = regexp.MustCompile(`^30\d{11}$`)
	lawsonShortPattern = regexp.MustCompile(`^L\d{10}$`)
	eplusPattern       = regexp.MustCompile(`^EP\d{10}$`)
	cnPattern          = regexp.MustCompile(`^CN\d{10}$`)
)

// ParseID converts a caller-supplied provider string. Unknown values return
// false; a bad hint just means no narrowing.
func ParseID(s string) (ID, bool) {
	switch ID(strings.ToLower(strings.TrimSpace(s))) {
	case SevenTicket, TicketPia, LawsonTicket, Eplus, CNPlayguide:
		return ID(strings.ToLower(strings.TrimSpace(s))), true
	}
	return None, false
}

// Resolve matches value against the issuer grammars. A hint that matches
// structurally is tried first and short-circuits the precedence search; it
// never bypasses checksum validation. Resolution is pure and idempotent.
func Resolve(value string, hint ID) Match {
	if hint != None && structuralMatch(hint, value) {
		m, _ := Parse(hint, value)
		return m
	}
	for _, id := range resolveOrder {
		if structuralMatch(id, value) {
			m, _ := Parse(id, value)
			return m
		}
	}
	return Match{Provider: None}
}

// Parse splits value into the named segments of the given issuer's layout
// and recomputes its check digit. A structural mismatch is an error; a
// checksum mismatch is not, it is surfaced via ChecksumValid=false.
func Parse(id ID, value string) (Match, error) {
	switch id {
	case SevenTicket:
		return parseSevenTicket(value)
	case TicketPia:
		return parsePrefixedEAN(TicketPia, piaPattern, value)
	case LawsonTicket:
		if lawsonShortPattern.MatchString(value) {
			return parseAlphaPrefixed(LawsonTicket, value, 1)
		}
		return parsePrefixedEAN(LawsonTicket, lawsonEANPattern, value)
	case Eplus:
		if !eplusPattern.MatchString(value) {
			return Match{}, fmt.Errorf("value does not match eplus layout")
		}
		return parseAlphaPrefixed(Eplus, value, 2)
	case CNPlayguide:
		if !cnPattern.MatchString(value) {
			return Match{}, fmt.Errorf("value does not match cnplayguide layout")
		}
		return parseAlphaPrefixed(CNPlayguide, value, 2)
	}
	return Match{}, fmt.Errorf("unknown provider: %q", id)
}

func structuralMatch(id ID, value string) bool {
	switch id {
	case SevenTicket:
		return sevenPattern.MatchString(value)
	case TicketPia:
		return piaPattern.MatchString(value)
	case LawsonTicket:
		return lawsonEANPattern.MatchString(value) || lawsonShortPattern.MatchString(value)
	case Eplus:
		return eplusPattern.MatchString(value)
	case CNPlayguide:
		return cnPattern.MatchString(value)
	}
	return false
}

// parseSevenTicket handles the space-separated three-segment layout: ticket
// number, serial number, three-digit check block. The check block is the
// digit sum of the first two segments mod 1000.
func parseSevenTicket(value string) (Match, error) {
	groups := sevenPattern.FindStringSubmatch(value)
	if groups == nil {
		return Match{}, fmt.Errorf("value does not match seven_ticket layout")
	}
	ticket, serial, check := groups[1], groups[2], groups[3]

	return Match{
		Provider: SevenTicket,
		Fields: map[string]string{
			"ticket_number": ticket,
			"serial_number": serial,
			"check_digit":   check,
		},
		ChecksumValid: sevenCheckBlock(ticket, serial) == check,
	}, nil
}

// parsePrefixedEAN handles the all-numeric 13-digit layouts: two-digit issuer
// prefix, ten-digit ticket number, EAN-13 check digit over the full value.
func parsePrefixedEAN(id ID, pattern *regexp.Regexp, value string) (Match, error) {
	if !pattern.MatchString(value) {
		return Match{}, fmt.Errorf("value does not match %s layout", id)
	}
	return Match{
		Provider: id,
		Fields: map[string]string{
			"prefix":        value[:2],
			"ticket_number": value[2:12],
			"check_digit":   value[12:],
		},
		ChecksumValid: ean13Valid(value),
	}, nil
}

// parseAlphaPrefixed handles the letter-prefixed layouts: issuer prefix,
// ticket number, Luhn check digit over the numeric part.
func parseAlphaPrefixed(id ID, value string, prefixLen int) (Match, error) {
	digits := value[prefixLen:]
	return Match{
		Provider: id,
		Fields: map[string]string{
			"prefix":        value[:prefixLen],
			"ticket_number": digits[:len(digits)-1],
			"check_digit":   digits[len(digits)-1:],
		},
		ChecksumValid: luhnValid(digits),
	}, nil
}
