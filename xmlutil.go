package saml2

import (
	"bytes"

	"github.com/beevik/etree"
	xrv "github.com/mattermost/xml-roundtrip-validator"
	"github.com/pkg/errors"
	"github.com/russellhaering/goxmldsig/etreeutils"
)

// findChild returns the first direct child of parentEl whose tag is
// childTag and whose namespace resolves to childNS, or nil.
func findChild(parentEl *etree.Element, childNS, childTag string) (*etree.Element, error) {
	for _, childEl := range parentEl.ChildElements() {
		if childEl.Tag != childTag {
			continue
		}
		ok, err := elementInNamespace(childEl, childNS)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		return childEl, nil
	}
	return nil, nil
}

// findChildren is like findChild but returns every match in document
// order.
func findChildren(parentEl *etree.Element, childNS, childTag string) ([]*etree.Element, error) {
	var rv []*etree.Element
	for _, childEl := range parentEl.ChildElements() {
		if childEl.Tag != childTag {
			continue
		}
		ok, err := elementInNamespace(childEl, childNS)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		rv = append(rv, childEl)
	}
	return rv, nil
}

// elementInNamespace resolves el's prefix against its parent context.
func elementInNamespace(el *etree.Element, ns string) (bool, error) {
	ctx, err := etreeutils.NSBuildParentContext(el)
	if err != nil {
		return false, err
	}
	ctx, err = ctx.SubContext(el)
	if err != nil {
		return false, err
	}
	resolved, err := ctx.LookupPrefix(el.Space)
	if err != nil {
		return false, errors.Wrapf(err, "cannot resolve prefix %q on <%s>", el.Space, el.Tag)
	}
	return resolved == ns, nil
}

// detachElement returns a standalone copy of el with all in-scope
// namespace declarations made explicit, so the copy can be serialized
// and parsed on its own.
func detachElement(el *etree.Element) (*etree.Element, error) {
	ctx, err := etreeutils.NSBuildParentContext(el)
	if err != nil {
		return nil, err
	}
	ctx, err = ctx.SubContext(el)
	if err != nil {
		return nil, err
	}
	return etreeutils.NSDetatch(ctx, el)
}

// serializeElement renders el without an XML declaration, preserving
// whitespace exactly as parsed.
func serializeElement(el *etree.Element) ([]byte, error) {
	doc := etree.NewDocument()
	doc.SetRoot(el.Copy())
	return doc.WriteToBytes()
}

// checkXMLRoundTrip rejects documents that mutate when round-tripped
// through a decoder, which defeats a class of parser-differential
// attacks on signed XML.
func checkXMLRoundTrip(raw []byte) error {
	return xrv.Validate(bytes.NewReader(raw))
}

// parseXMLDocument reads raw into an etree document after round-trip
// validation.
func parseXMLDocument(raw []byte) (*etree.Document, error) {
	if err := checkXMLRoundTrip(raw); err != nil {
		return nil, errors.Wrap(err, "document failed round-trip validation")
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return nil, err
	}
	if doc.Root() == nil {
		return nil, errors.New("document has no root element")
	}
	return doc, nil
}
