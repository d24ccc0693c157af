// Package webhook models the inbound Bitrix24 business-process callback and
// extracts the identifiers the relay needs from it.
//
// Bitrix24 delivers outgoing hooks either as JSON or as PHP-style bracketed
// form fields, e.g.
//
//	document_id[0]=crm&document_id[1]=CCrmDocumentDeal&document_id[2]=DEAL_475509
//	auth[member_id]=abc123&auth[application_token]=...
//
// Both encodings are normalized into Event. Extraction never errors: absent
// or malformed identifiers yield empty strings, which the service layer maps
// to benign skips.
package webhook

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var (
	digitsRE = regexp.MustCompile(`^\d+$`)
	dealRE   = regexp.MustCompile(`^DEAL_(\d+)$`)
)

// Auth is the authentication block Bitrix24 attaches to every outgoing hook.
// member_id arrives as a string on most portals but has been observed as a
// number, so it is coerced during unmarshalling.
type Auth struct {
	Domain           string     `json:"domain"`
	MemberID         FlexString `json:"member_id"`
	ApplicationToken string     `json:"application_token"`
}

// Event is the normalized inbound payload.
type Event struct {
	// DocumentID is the business-process document triple,
	// e.g. ["crm", "CCrmDocumentDeal", "DEAL_475509"].
	DocumentID []string `json:"document_id"`
	Auth       Auth     `json:"auth"`
	// Timestamp is the portal-side send time; string on some portals,
	// number on others.
	Timestamp FlexString `json:"ts,omitempty"`

	// QueryDealID carries the raw deal_id query parameter, when present.
	// It is filled by the transport layer, not by body decoding.
	QueryDealID string `json:"-"`
}

// FlexString decodes a JSON string or number into a string.
type FlexString string

// UnmarshalJSON accepts "abc", 123, and null.
func (s *FlexString) UnmarshalJSON(b []byte) error {
	t := strings.TrimSpace(string(b))
	if t == "null" {
		*s = ""
		return nil
	}
	if strings.HasPrefix(t, `"`) {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = FlexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("member id must be a string or number: %w", err)
	}
	*s = FlexString(n.String())
	return nil
}

// FromForm builds an Event from Bitrix24's bracketed form encoding.
func FromForm(form url.Values) Event {
	ev := Event{
		Auth: Auth{
			Domain:           form.Get("auth[domain]"),
			MemberID:         FlexString(form.Get("auth[member_id]")),
			ApplicationToken: form.Get("auth[application_token]"),
		},
	}
	for i := 0; ; i++ {
		key := fmt.Sprintf("document_id[%d]", i)
		if _, ok := form[key]; !ok {
			break
		}
		ev.DocumentID = append(ev.DocumentID, form.Get(key))
	}
	return ev
}

// DealID resolves the numeric deal identifier for this event.
//
// Precedence:
//  1. the deal_id query parameter, when it is all digits;
//  2. document_id[2] matching DEAL_<digits>, from which the digits are taken.
//
// An empty string means no usable identifier was found.
func (e Event) DealID() string {
	if q := strings.TrimSpace(e.QueryDealID); q != "" && digitsRE.MatchString(q) {
		return q
	}
	if len(e.DocumentID) >= 3 {
		if m := dealRE.FindStringSubmatch(strings.TrimSpace(e.DocumentID[2])); m != nil {
			return m[1]
		}
	}
	return ""
}

// MemberID returns the caller's portal member id, or "" when absent.
func (e Event) MemberID() string {
	return strings.TrimSpace(string(e.Auth.MemberID))
}
