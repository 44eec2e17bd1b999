package saml2

import (
	"encoding/xml"
	"time"

	"github.com/beevik/etree"
)

// MaxIssueDelay is the longest allowed time between when a message is
// issued by the IdP and when it is validated here, to keep old
// responses from being replayed while allowing for some clock drift.
var MaxIssueDelay = time.Second * 90

// MaxClockSkew is the leeway allowed when evaluating NotBefore and
// NotOnOrAfter conditions. It defaults to 180 seconds, which matches
// Shibboleth.
var MaxClockSkew = time.Second * 180

// Validate runs the response validation state machine and returns the
// identities the response vouches for.
//
// The first call does all the work; every later call, from any
// goroutine, replays the first call's outcome without touching the
// crypto again.
func (r *Response) Validate(opts *Options) ([]*ClaimsIdentity, error) {
	r.validateOnce.Do(func() {
		r.validated, r.validateErr = r.validate(opts)
		if ve, ok := r.validateErr.(*ValidationError); ok && ve.Response == "" && r.doc != nil {
			if raw, err := serializeElement(r.doc.Root()); err == nil {
				ve.Response = string(raw)
			}
		}
	})
	return r.validated, r.validateErr
}

func (r *Response) validate(opts *Options) ([]*ClaimsIdentity, error) {
	if r.doc == nil {
		return nil, validationError(ErrXMLMalformed, "response was not parsed from the wire")
	}
	root := r.doc.Root()
	now := TimeNow()

	// Correlation. The relay state is taken from the store exactly
	// once; a miss means an unknown or already-consumed exchange.
	idp := opts.IdentityProvider(r.Issuer)
	if r.InResponseTo == "" {
		if idp == nil {
			return nil, validationError(ErrIssuerMismatch, "no configured IdP has entity ID %q", r.Issuer)
		}
		if !idp.AllowUnsolicitedAuthnResponse {
			return nil, validationError(ErrUnsolicitedNotAllowed, "IdP %q does not allow unsolicited responses", r.Issuer)
		}
	} else {
		state := opts.RequestStore.TryRemove(r.RelayState)
		if state == nil {
			return nil, validationError(ErrReplayedOrUnknownRelayState, "relay state %q is unknown or already consumed", r.RelayState)
		}
		if state.MessageID != r.InResponseTo {
			return nil, validationError(ErrInResponseToMismatch, "InResponseTo %q does not match the pending request %q", r.InResponseTo, state.MessageID)
		}
		if state.IDP != r.Issuer {
			return nil, validationError(ErrIssuerMismatch, "response issuer %q does not match the IdP the request went to (%q)", r.Issuer, state.IDP)
		}
		if idp == nil {
			return nil, validationError(ErrIssuerMismatch, "no configured IdP has entity ID %q", r.Issuer)
		}
	}

	if r.IssueInstant.Add(MaxIssueDelay).Before(now) {
		return nil, validationError(ErrConditionsNotMet, "response IssueInstant expired at %s", r.IssueInstant.Add(MaxIssueDelay))
	}

	// Signature on the response itself, checked against the pristine
	// received octets before anything mutates the document.
	responseSigned, err := elementIsSigned(root)
	if err != nil {
		return nil, validationErrorWrap(ErrXMLMalformed, err, "cannot inspect response")
	}
	if responseSigned {
		if err := verifySignedElement(root, idp.SigningCerts); err != nil {
			return nil, err
		}
	}

	assertions, err := collectAssertions(root, opts.SP.DecryptionPairs)
	if err != nil {
		return nil, err
	}

	// Without a response-level signature, every assertion must carry
	// its own.
	if !responseSigned {
		for _, assertionEl := range assertions {
			if err := verifySignedElement(assertionEl, idp.SigningCerts); err != nil {
				if kind, ok := KindOf(err); ok && kind == ErrNotSigned {
					return nil, validationError(ErrUnsignedAssertion, "response is unsigned and assertion %q is unsigned", assertionEl.SelectAttrValue("ID", ""))
				}
				return nil, err
			}
		}
	}

	// Claims extraction only makes sense on success; anything else is
	// surfaced with its full status detail.
	if r.Status != StatusSuccess {
		ve := validationError(ErrUnsuccessfulStatus, "response status is %s", r.Status)
		ve.Status = r.Status
		ve.StatusMessage = r.StatusMessage
		ve.SecondLevelStatus = r.SecondLevelStatus
		return nil, ve
	}

	var identities []*ClaimsIdentity
	for _, assertionEl := range assertions {
		identity, err := r.extractIdentity(assertionEl, idp, opts, now)
		if err != nil {
			return nil, err
		}
		identities = append(identities, identity)
	}
	return identities, nil
}

// extractIdentity parses one verified assertion element, enforces its
// conditions and flattens it into an identity.
func (r *Response) extractIdentity(assertionEl *etree.Element, idp *IdentityProvider, opts *Options, now time.Time) (*ClaimsIdentity, error) {
	// The signature was verified against the element octets already;
	// strip it so the parser below never sees it as content.
	detached, err := detachElement(assertionEl)
	if err != nil {
		return nil, validationErrorWrap(ErrXMLMalformed, err, "cannot detach assertion")
	}
	for {
		sigEl, err := findChild(detached, DsigNamespace, "Signature")
		if err != nil {
			return nil, validationErrorWrap(ErrXMLMalformed, err, "cannot inspect assertion")
		}
		if sigEl == nil {
			break
		}
		detached.RemoveChild(sigEl)
	}
	raw, err := serializeElement(detached)
	if err != nil {
		return nil, validationErrorWrap(ErrXMLMalformed, err, "cannot serialize assertion")
	}

	assertion := &Assertion{}
	if err := xml.Unmarshal(raw, assertion); err != nil {
		return nil, validationErrorWrap(ErrXMLMalformed, err, "cannot parse assertion")
	}

	if assertion.Issuer == nil || assertion.Issuer.Value != idp.EntityID {
		return nil, validationError(ErrIssuerMismatch, "assertion issuer does not match the response issuer")
	}
	if assertion.IssueInstant.Add(MaxIssueDelay).Before(now) {
		return nil, validationError(ErrConditionsNotMet, "assertion IssueInstant expired at %s", assertion.IssueInstant.Add(MaxIssueDelay))
	}

	// Token replay. OneTimeUse sharpens the semantics, but every
	// assertion ID is remembered: a bearer token presented twice is
	// an attack either way.
	replayUntil := now.Add(MaxIssueDelay)
	if assertion.Conditions != nil && !assertion.Conditions.NotOnOrAfter.IsZero() {
		replayUntil = assertion.Conditions.NotOnOrAfter.Add(MaxClockSkew)
	}
	if !opts.replayStore().Remember(assertion.ID, replayUntil) {
		return nil, validationError(ErrAssertionReplayed, "assertion %q was presented before", assertion.ID)
	}

	bearer := false
	if assertion.Subject != nil {
		for _, confirmation := range assertion.Subject.SubjectConfirmations {
			if confirmation.Method == BearerMethod {
				bearer = true
			}
			data := confirmation.SubjectConfirmationData
			if data == nil {
				continue
			}
			if data.InResponseTo != "" && r.InResponseTo != "" && data.InResponseTo != r.InResponseTo {
				return nil, validationError(ErrInResponseToMismatch, "SubjectConfirmationData InResponseTo %q does not match the exchange", data.InResponseTo)
			}
			if !data.NotOnOrAfter.IsZero() && data.NotOnOrAfter.Add(MaxClockSkew).Before(now) {
				return nil, validationError(ErrConditionsNotMet, "SubjectConfirmationData expired at %s", data.NotOnOrAfter)
			}
		}
	}

	if conditions := assertion.Conditions; conditions != nil {
		if !conditions.NotBefore.IsZero() && conditions.NotBefore.Add(-MaxClockSkew).After(now) {
			return nil, validationError(ErrConditionsNotMet, "assertion is not valid before %s", conditions.NotBefore)
		}
		if !conditions.NotOnOrAfter.IsZero() && conditions.NotOnOrAfter.Add(MaxClockSkew).Before(now) {
			return nil, validationError(ErrConditionsNotMet, "assertion expired at %s", conditions.NotOnOrAfter)
		}
		if err := checkAudience(conditions, opts.SP, bearer); err != nil {
			return nil, err
		}
	}

	return identityFromAssertion(assertion), nil
}

// checkAudience enforces AudienceRestriction conditions under the
// configured policy.
func checkAudience(conditions *Conditions, sp SPOptions, bearer bool) error {
	switch sp.AudienceMode {
	case AudienceNever:
		return nil
	case AudienceIfBearer:
		if !bearer {
			return nil
		}
	}
	if len(conditions.AudienceRestrictions) == 0 {
		return nil
	}
	for _, restriction := range conditions.AudienceRestrictions {
		found := false
		for _, audience := range restriction.Audiences {
			if audience.Value == sp.EntityID {
				found = true
			}
		}
		if !found {
			return validationError(ErrConditionsNotMet, "no AudienceRestriction names this SP (%q)", sp.EntityID)
		}
	}
	return nil
}
