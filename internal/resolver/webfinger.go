package resolver

import (
	"strings"
)

// Webfinger link relations and media types used for protocol discovery.
const (
	relSelf        = "self"
	relAtomFeed    = "http://schemas.google.com/g/2010#updates-from"
	relSalmon      = "salmon"
	relMagicKey    = "magic-public-key"
	typeActivity   = "application/activity+json"
	typeActivityLD = `application/ld+json; profile="https://www.w3.org/ns/activitystreams"`
	typeAtom       = "application/atom+xml"
)

// jrdLink is one entry of a JSON Resource Descriptor links array.
type jrdLink struct {
	Rel      string `json:"rel"`
	Type     string `json:"type"`
	Href     string `json:"href"`
	Template string `json:"template"`
}

// jrd is the webfinger discovery document.
type jrd struct {
	Subject string    `json:"subject"`
	Aliases []string  `json:"aliases"`
	Links   []jrdLink `json:"links"`
}

// acct extracts user and domain from the subject ("acct:user@domain").
func (d *jrd) acct() (user, domain string, ok bool) {
	s := strings.TrimPrefix(d.Subject, "acct:")
	user, domain, ok = strings.Cut(s, "@")
	if !ok || user == "" || domain == "" {
		return "", "", false
	}
	return user, domain, true
}

// link returns the first link matching rel (and type, when given).
func (d *jrd) link(rel, mediaType string) *jrdLink {
	for i := range d.Links {
		l := &d.Links[i]
		if l.Rel != rel {
			continue
		}
		if mediaType != "" && l.Type != mediaType {
			continue
		}
		return l
	}
	return nil
}

// activityPubHref returns the self link to a JSON-LD actor document, if any.
func (d *jrd) activityPubHref() string {
	if l := d.link(relSelf, typeActivity); l != nil {
		return l.Href
	}
	if l := d.link(relSelf, typeActivityLD); l != nil {
		return l.Href
	}
	return ""
}

// ostatusLinks returns the legacy feed/salmon/magic-key triple. All three
// must be present for an OStatus fallback.
func (d *jrd) ostatusLinks() (feed, salmon, magicKey string, ok bool) {
	f := d.link(relAtomFeed, typeAtom)
	if f == nil {
		f = d.link(relAtomFeed, "")
	}
	s := d.link(relSalmon, "")
	k := d.link(relMagicKey, "")
	if f == nil || s == nil || k == nil {
		return "", "", "", false
	}
	return f.Href, s.Href, k.Href, true
}
