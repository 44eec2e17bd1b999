package saml2

import (
	"sync"
	"time"

	"github.com/beevik/etree"
	"github.com/jonboulle/clockwork"
)

// Claim is a single attribute extracted from an assertion.
type Claim struct {
	Name         string
	FriendlyName string
	Values       []string
}

// ClaimsIdentity is the authenticated identity an assertion yields.
type ClaimsIdentity struct {
	NameID       *NameID
	SessionIndex string
	AuthnContext string
	Claims       []Claim
}

// assertionElement renders the identity as a saml2:Assertion for an
// outbound response. The issuer is copied from the response.
func (ci *ClaimsIdentity) assertionElement(issuer, inResponseTo, recipient string) *etree.Element {
	now := TimeNow()

	el := etree.NewElement("saml2:Assertion")
	el.CreateAttr("xmlns:saml2", AssertionNamespace)
	el.CreateAttr("ID", NewID())
	el.CreateAttr("Version", "2.0")
	el.CreateAttr("IssueInstant", formatTime(now))

	issuerEl := el.CreateElement("saml2:Issuer")
	issuerEl.SetText(issuer)

	if ci.NameID != nil {
		subjectEl := el.CreateElement("saml2:Subject")
		nameIDEl := subjectEl.CreateElement("saml2:NameID")
		if ci.NameID.Format != "" {
			nameIDEl.CreateAttr("Format", ci.NameID.Format)
		}
		nameIDEl.SetText(ci.NameID.Value)
		confirmationEl := subjectEl.CreateElement("saml2:SubjectConfirmation")
		confirmationEl.CreateAttr("Method", BearerMethod)
		dataEl := confirmationEl.CreateElement("saml2:SubjectConfirmationData")
		if inResponseTo != "" {
			dataEl.CreateAttr("InResponseTo", inResponseTo)
		}
		if recipient != "" {
			dataEl.CreateAttr("Recipient", recipient)
		}
		dataEl.CreateAttr("NotOnOrAfter", formatTime(now.Add(MaxIssueDelay)))
	}

	if len(ci.Claims) > 0 {
		statementEl := el.CreateElement("saml2:AttributeStatement")
		for _, claim := range ci.Claims {
			attrEl := statementEl.CreateElement("saml2:Attribute")
			attrEl.CreateAttr("Name", claim.Name)
			if claim.FriendlyName != "" {
				attrEl.CreateAttr("FriendlyName", claim.FriendlyName)
			}
			for _, value := range claim.Values {
				valueEl := attrEl.CreateElement("saml2:AttributeValue")
				valueEl.SetText(value)
			}
		}
	}
	return el
}

// identityFromAssertion flattens a verified assertion into the identity
// handed back to the host.
func identityFromAssertion(assertion *Assertion) *ClaimsIdentity {
	rv := &ClaimsIdentity{}
	if assertion.Subject != nil {
		rv.NameID = assertion.Subject.NameID
	}
	for _, statement := range assertion.AuthnStatements {
		rv.SessionIndex = statement.SessionIndex
		if statement.AuthnContext != nil {
			rv.AuthnContext = statement.AuthnContext.AuthnContextClassRef
		}
	}
	for _, statement := range assertion.AttributeStatements {
		for _, attr := range statement.Attributes {
			claim := Claim{Name: attr.Name, FriendlyName: attr.FriendlyName}
			for _, value := range attr.Values {
				claim.Values = append(claim.Values, value.Value)
			}
			rv.Claims = append(rv.Claims, claim)
		}
	}
	return rv
}

// AssertionReplayStore remembers assertion IDs until they expire so a
// captured assertion cannot be presented twice.
type AssertionReplayStore struct {
	Clock clockwork.Clock

	mu   sync.Mutex
	seen map[string]time.Time
}

// NewAssertionReplayStore returns an empty replay store using the real
// clock.
func NewAssertionReplayStore() *AssertionReplayStore {
	return &AssertionReplayStore{Clock: clockwork.NewRealClock()}
}

// Remember records id until the expiry instant. It returns false when
// the id has been seen before and is still live.
func (s *AssertionReplayStore) Remember(id string, until time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.Clock.Now()
	if s.seen == nil {
		s.seen = map[string]time.Time{}
	}
	for seenID, expiry := range s.seen {
		if expiry.Before(now) {
			delete(s.seen, seenID)
		}
	}
	if _, ok := s.seen[id]; ok {
		return false
	}
	if until.Before(now) {
		until = now.Add(MaxIssueDelay)
	}
	s.seen[id] = until
	return true
}
