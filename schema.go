package saml2

import (
	"encoding/xml"
	"time"
)

// The structs below mirror the wire shape of SAML assertions. They are
// only ever unmarshalled from XML whose signature has already been
// verified; the authoritative octets live in the etree documents held
// by Response.
//
// See http://docs.oasis-open.org/security/saml/v2.0/saml-core-2.0-os.pdf

// Issuer represents the SAML element of the same name.
type Issuer struct {
	XMLName xml.Name `xml:"urn:oasis:names:tc:SAML:2.0:assertion Issuer"`
	Format  string   `xml:",attr"`
	Value   string   `xml:",chardata"`
}

// NameIDFormat is the format requested for subject identifiers.
type NameIDFormat string

// Name ID formats
const (
	UnspecifiedNameIDFormat  NameIDFormat = "urn:oasis:names:tc:SAML:1.1:nameid-format:unspecified"
	TransientNameIDFormat    NameIDFormat = "urn:oasis:names:tc:SAML:2.0:nameid-format:transient"
	EmailAddressNameIDFormat NameIDFormat = "urn:oasis:names:tc:SAML:1.1:nameid-format:emailAddress"
	PersistentNameIDFormat   NameIDFormat = "urn:oasis:names:tc:SAML:2.0:nameid-format:persistent"
)

// NameID represents the SAML element of the same name.
type NameID struct {
	Format          string `xml:",attr"`
	NameQualifier   string `xml:",attr"`
	SPNameQualifier string `xml:",attr"`
	Value           string `xml:",chardata"`
}

// Subject represents the SAML element of the same name.
type Subject struct {
	XMLName              xml.Name              `xml:"urn:oasis:names:tc:SAML:2.0:assertion Subject"`
	NameID               *NameID               `xml:"NameID"`
	SubjectConfirmations []SubjectConfirmation `xml:"SubjectConfirmation"`
}

// SubjectConfirmation represents the SAML element of the same name.
type SubjectConfirmation struct {
	Method                  string                   `xml:",attr"`
	SubjectConfirmationData *SubjectConfirmationData `xml:"SubjectConfirmationData"`
}

// SubjectConfirmationData represents the SAML element of the same name.
type SubjectConfirmationData struct {
	Address      string    `xml:",attr"`
	InResponseTo string    `xml:",attr"`
	NotOnOrAfter time.Time `xml:",attr"`
	Recipient    string    `xml:",attr"`
}

// Conditions represents the SAML element of the same name.
type Conditions struct {
	NotBefore            time.Time             `xml:",attr"`
	NotOnOrAfter         time.Time             `xml:",attr"`
	OneTimeUse           *OneTimeUse           `xml:"OneTimeUse"`
	AudienceRestrictions []AudienceRestriction `xml:"AudienceRestriction"`
}

// OneTimeUse represents the SAML condition of the same name.
type OneTimeUse struct{}

// AudienceRestriction represents the SAML element of the same name.
type AudienceRestriction struct {
	Audiences []Audience `xml:"Audience"`
}

// Audience represents the SAML element of the same name.
type Audience struct {
	Value string `xml:",chardata"`
}

// AuthnStatement represents the SAML element of the same name.
type AuthnStatement struct {
	AuthnInstant time.Time     `xml:",attr"`
	SessionIndex string        `xml:",attr"`
	AuthnContext *AuthnContext `xml:"AuthnContext"`
}

// AuthnContext represents the SAML element of the same name.
type AuthnContext struct {
	AuthnContextClassRef string `xml:"AuthnContextClassRef"`
}

// AttributeStatement represents the SAML element of the same name.
type AttributeStatement struct {
	Attributes []Attribute `xml:"Attribute"`
}

// Attribute represents the SAML element of the same name.
type Attribute struct {
	FriendlyName string           `xml:",attr"`
	Name         string           `xml:",attr"`
	NameFormat   string           `xml:",attr"`
	Values       []AttributeValue `xml:"AttributeValue"`
}

// AttributeValue represents the SAML element of the same name.
type AttributeValue struct {
	Type   string  `xml:"http://www.w3.org/2001/XMLSchema-instance type,attr"`
	Value  string  `xml:",chardata"`
	NameID *NameID `xml:"NameID"`
}

// Assertion represents the SAML element of the same name, parsed after
// its signature has been verified and stripped.
type Assertion struct {
	XMLName             xml.Name             `xml:"urn:oasis:names:tc:SAML:2.0:assertion Assertion"`
	ID                  string               `xml:",attr"`
	IssueInstant        time.Time            `xml:",attr"`
	Version             string               `xml:",attr"`
	Issuer              *Issuer              `xml:"urn:oasis:names:tc:SAML:2.0:assertion Issuer"`
	Subject             *Subject             `xml:"urn:oasis:names:tc:SAML:2.0:assertion Subject"`
	Conditions          *Conditions          `xml:"Conditions"`
	AuthnStatements     []AuthnStatement     `xml:"AuthnStatement"`
	AttributeStatements []AttributeStatement `xml:"AttributeStatement"`
}
