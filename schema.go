package saml

import (
	"encoding/xml"

	"github.com/beevik/etree"
)

// AuthnRequest represents the SAML object of the same name, a request
// from a service provider to authenticate a user.
//
// See http://docs.oasis-open.org/security/saml/v2.0/saml-core-2.0-os.pdf §3.4.1
type AuthnRequest struct {
	XMLName xml.Name `xml:"urn:oasis:names:tc:SAML:2.0:protocol AuthnRequest"`

	ID                          string      `xml:"ID,attr"`
	Version                     string      `xml:"Version,attr"`
	IssueInstant                RelaxedTime `xml:"IssueInstant,attr"`
	Destination                 string      `xml:"Destination,attr"`
	AssertionConsumerServiceURL string      `xml:"AssertionConsumerServiceURL,attr"`
	ProtocolBinding             string      `xml:"ProtocolBinding,attr"`
	ProviderName                string      `xml:"ProviderName,attr"`
	ForceAuthn                  *bool       `xml:"ForceAuthn,attr"`
	IsPassive                   *bool       `xml:"IsPassive,attr"`

	Issuer                *Issuer                `xml:"urn:oasis:names:tc:SAML:2.0:assertion Issuer"`
	Signature             *etree.Element         `xml:"-"`
	Subject               *Subject               `xml:"urn:oasis:names:tc:SAML:2.0:assertion Subject"`
	NameIDPolicy          *NameIDPolicy          `xml:"urn:oasis:names:tc:SAML:2.0:protocol NameIDPolicy"`
	RequestedAuthnContext *RequestedAuthnContext `xml:"urn:oasis:names:tc:SAML:2.0:protocol RequestedAuthnContext"`
}

// Element returns an etree.Element representing the object in XML form.
func (r *AuthnRequest) Element() *etree.Element {
	el := etree.NewElement("samlp:AuthnRequest")
	el.CreateAttr("xmlns:samlp", protocolNamespace)
	el.CreateAttr("xmlns:saml", assertionNamespace)
	el.CreateAttr("ID", r.ID)
	el.CreateAttr("Version", r.Version)
	el.CreateAttr("IssueInstant", r.IssueInstant.String())
	if r.Destination != "" {
		el.CreateAttr("Destination", r.Destination)
	}
	if r.AssertionConsumerServiceURL != "" {
		el.CreateAttr("AssertionConsumerServiceURL", r.AssertionConsumerServiceURL)
	}
	if r.ProtocolBinding != "" {
		el.CreateAttr("ProtocolBinding", r.ProtocolBinding)
	}
	if r.ProviderName != "" {
		el.CreateAttr("ProviderName", r.ProviderName)
	}
	if r.ForceAuthn != nil && *r.ForceAuthn {
		el.CreateAttr("ForceAuthn", "true")
	}
	if r.IsPassive != nil && *r.IsPassive {
		el.CreateAttr("IsPassive", "true")
	}
	if r.Issuer != nil {
		el.AddChild(r.Issuer.Element())
	}
	if r.Signature != nil {
		el.AddChild(r.Signature)
	}
	if r.Subject != nil {
		el.AddChild(r.Subject.Element())
	}
	if r.NameIDPolicy != nil {
		el.AddChild(r.NameIDPolicy.Element())
	}
	if r.RequestedAuthnContext != nil {
		el.AddChild(r.RequestedAuthnContext.Element())
	}
	return el
}

// Issuer represents the SAML object of the same name.
type Issuer struct {
	XMLName xml.Name `xml:"urn:oasis:names:tc:SAML:2.0:assertion Issuer"`
	Format  string   `xml:"Format,attr,omitempty"`
	Value   string   `xml:",chardata"`
}

// Element returns an etree.Element representing the object in XML form.
func (i *Issuer) Element() *etree.Element {
	el := etree.NewElement("saml:Issuer")
	el.CreateAttr("xmlns:saml", assertionNamespace)
	if i.Format != "" {
		el.CreateAttr("Format", i.Format)
	}
	el.SetText(i.Value)
	return el
}

// NameIDPolicy represents the SAML object of the same name.
//
// See http://docs.oasis-open.org/security/saml/v2.0/saml-core-2.0-os.pdf §3.4.1.1
type NameIDPolicy struct {
	XMLName         xml.Name `xml:"urn:oasis:names:tc:SAML:2.0:protocol NameIDPolicy"`
	Format          string   `xml:"Format,attr,omitempty"`
	SPNameQualifier string   `xml:"SPNameQualifier,attr,omitempty"`
	AllowCreate     *bool    `xml:"AllowCreate,attr"`
}

// Element returns an etree.Element representing the object in XML form.
func (p *NameIDPolicy) Element() *etree.Element {
	el := etree.NewElement("samlp:NameIDPolicy")
	if p.Format != "" {
		el.CreateAttr("Format", p.Format)
	}
	if p.SPNameQualifier != "" {
		el.CreateAttr("SPNameQualifier", p.SPNameQualifier)
	}
	if p.AllowCreate != nil {
		if *p.AllowCreate {
			el.CreateAttr("AllowCreate", "true")
		} else {
			el.CreateAttr("AllowCreate", "false")
		}
	}
	return el
}

// RequestedAuthnContext represents the SAML object of the same name.
type RequestedAuthnContext struct {
	XMLName              xml.Name `xml:"urn:oasis:names:tc:SAML:2.0:protocol RequestedAuthnContext"`
	Comparison           string   `xml:"Comparison,attr,omitempty"`
	AuthnContextClassRef []string `xml:"urn:oasis:names:tc:SAML:2.0:assertion AuthnContextClassRef"`
}

// Element returns an etree.Element representing the object in XML form.
func (c *RequestedAuthnContext) Element() *etree.Element {
	el := etree.NewElement("samlp:RequestedAuthnContext")
	if c.Comparison != "" {
		el.CreateAttr("Comparison", c.Comparison)
	}
	for _, ref := range c.AuthnContextClassRef {
		refEl := etree.NewElement("saml:AuthnContextClassRef")
		refEl.SetText(ref)
		el.AddChild(refEl)
	}
	return el
}

// LogoutRequest represents the SAML object of the same name, a request
// to terminate a user's session.
//
// See http://docs.oasis-open.org/security/saml/v2.0/saml-core-2.0-os.pdf §3.7.1
type LogoutRequest struct {
	XMLName xml.Name `xml:"urn:oasis:names:tc:SAML:2.0:protocol LogoutRequest"`

	ID           string       `xml:"ID,attr"`
	Version      string       `xml:"Version,attr"`
	IssueInstant RelaxedTime  `xml:"IssueInstant,attr"`
	Destination  string       `xml:"Destination,attr"`
	NotOnOrAfter *RelaxedTime `xml:"NotOnOrAfter,attr"`
	Reason       string       `xml:"Reason,attr"`

	Issuer       *Issuer        `xml:"urn:oasis:names:tc:SAML:2.0:assertion Issuer"`
	Signature    *etree.Element `xml:"-"`
	NameID       *NameID        `xml:"urn:oasis:names:tc:SAML:2.0:assertion NameID"`
	EncryptedID  *etree.Element `xml:"-"`
	SessionIndex []string       `xml:"urn:oasis:names:tc:SAML:2.0:protocol SessionIndex"`
}

// Element returns an etree.Element representing the object in XML form.
func (r *LogoutRequest) Element() *etree.Element {
	el := etree.NewElement("samlp:LogoutRequest")
	el.CreateAttr("xmlns:samlp", protocolNamespace)
	el.CreateAttr("xmlns:saml", assertionNamespace)
	el.CreateAttr("ID", r.ID)
	el.CreateAttr("Version", r.Version)
	el.CreateAttr("IssueInstant", r.IssueInstant.String())
	if r.Destination != "" {
		el.CreateAttr("Destination", r.Destination)
	}
	if r.NotOnOrAfter != nil {
		el.CreateAttr("NotOnOrAfter", r.NotOnOrAfter.String())
	}
	if r.Reason != "" {
		el.CreateAttr("Reason", r.Reason)
	}
	if r.Issuer != nil {
		el.AddChild(r.Issuer.Element())
	}
	if r.Signature != nil {
		el.AddChild(r.Signature)
	}
	if r.EncryptedID != nil {
		idEl := etree.NewElement("saml:EncryptedID")
		idEl.AddChild(r.EncryptedID)
		el.AddChild(idEl)
	} else if r.NameID != nil {
		el.AddChild(r.NameID.Element())
	}
	for _, index := range r.SessionIndex {
		indexEl := etree.NewElement("samlp:SessionIndex")
		indexEl.SetText(index)
		el.AddChild(indexEl)
	}
	return el
}

// LogoutResponse represents the SAML object of the same name.
//
// See http://docs.oasis-open.org/security/saml/v2.0/saml-core-2.0-os.pdf §3.7.2
type LogoutResponse struct {
	XMLName xml.Name `xml:"urn:oasis:names:tc:SAML:2.0:protocol LogoutResponse"`

	ID           string      `xml:"ID,attr"`
	InResponseTo string      `xml:"InResponseTo,attr"`
	Version      string      `xml:"Version,attr"`
	IssueInstant RelaxedTime `xml:"IssueInstant,attr"`
	Destination  string      `xml:"Destination,attr"`

	Issuer    *Issuer        `xml:"urn:oasis:names:tc:SAML:2.0:assertion Issuer"`
	Signature *etree.Element `xml:"-"`
	Status    Status         `xml:"urn:oasis:names:tc:SAML:2.0:protocol Status"`
}

// Element returns an etree.Element representing the object in XML form.
func (r *LogoutResponse) Element() *etree.Element {
	el := etree.NewElement("samlp:LogoutResponse")
	el.CreateAttr("xmlns:samlp", protocolNamespace)
	el.CreateAttr("xmlns:saml", assertionNamespace)
	el.CreateAttr("ID", r.ID)
	if r.InResponseTo != "" {
		el.CreateAttr("InResponseTo", r.InResponseTo)
	}
	el.CreateAttr("Version", r.Version)
	el.CreateAttr("IssueInstant", r.IssueInstant.String())
	if r.Destination != "" {
		el.CreateAttr("Destination", r.Destination)
	}
	if r.Issuer != nil {
		el.AddChild(r.Issuer.Element())
	}
	if r.Signature != nil {
		el.AddChild(r.Signature)
	}
	el.AddChild(r.Status.Element())
	return el
}

// Response represents the SAML object of the same name, carrying the
// identity provider's answer to an AuthnRequest.
//
// See http://docs.oasis-open.org/security/saml/v2.0/saml-core-2.0-os.pdf §3.3.3
type Response struct {
	XMLName xml.Name `xml:"urn:oasis:names:tc:SAML:2.0:protocol Response"`

	ID           string      `xml:"ID,attr"`
	InResponseTo string      `xml:"InResponseTo,attr"`
	Version      string      `xml:"Version,attr"`
	IssueInstant RelaxedTime `xml:"IssueInstant,attr"`
	Destination  string      `xml:"Destination,attr"`

	Issuer    *Issuer    `xml:"urn:oasis:names:tc:SAML:2.0:assertion Issuer"`
	Status    Status     `xml:"urn:oasis:names:tc:SAML:2.0:protocol Status"`
	Assertion *Assertion `xml:"urn:oasis:names:tc:SAML:2.0:assertion Assertion"`
}

// Status represents the SAML object of the same name.
//
// See http://docs.oasis-open.org/security/saml/v2.0/saml-core-2.0-os.pdf §3.2.2.1
type Status struct {
	XMLName       xml.Name       `xml:"urn:oasis:names:tc:SAML:2.0:protocol Status"`
	StatusCode    StatusCode     `xml:"urn:oasis:names:tc:SAML:2.0:protocol StatusCode"`
	StatusMessage *StatusMessage `xml:"urn:oasis:names:tc:SAML:2.0:protocol StatusMessage"`
}

// Element returns an etree.Element representing the object in XML form.
func (s *Status) Element() *etree.Element {
	el := etree.NewElement("samlp:Status")
	el.AddChild(s.StatusCode.Element())
	if s.StatusMessage != nil {
		msgEl := etree.NewElement("samlp:StatusMessage")
		msgEl.SetText(s.StatusMessage.Value)
		el.AddChild(msgEl)
	}
	return el
}

// StatusCode represents the SAML object of the same name. Second-level
// codes nest inside the top-level code.
type StatusCode struct {
	XMLName    xml.Name    `xml:"urn:oasis:names:tc:SAML:2.0:protocol StatusCode"`
	Value      string      `xml:"Value,attr"`
	StatusCode *StatusCode `xml:"urn:oasis:names:tc:SAML:2.0:protocol StatusCode"`
}

// Element returns an etree.Element representing the object in XML form.
func (s *StatusCode) Element() *etree.Element {
	el := etree.NewElement("samlp:StatusCode")
	el.CreateAttr("Value", s.Value)
	if s.StatusCode != nil {
		el.AddChild(s.StatusCode.Element())
	}
	return el
}

// StatusMessage represents the SAML object of the same name.
type StatusMessage struct {
	Value string `xml:",chardata"`
}

// Assertion represents the SAML object of the same name.
//
// See http://docs.oasis-open.org/security/saml/v2.0/saml-core-2.0-os.pdf §2.3.3
type Assertion struct {
	XMLName xml.Name `xml:"urn:oasis:names:tc:SAML:2.0:assertion Assertion"`

	ID           string      `xml:"ID,attr"`
	Version      string      `xml:"Version,attr"`
	IssueInstant RelaxedTime `xml:"IssueInstant,attr"`

	Issuer              *Issuer              `xml:"urn:oasis:names:tc:SAML:2.0:assertion Issuer"`
	Subject             *Subject             `xml:"urn:oasis:names:tc:SAML:2.0:assertion Subject"`
	Conditions          *Conditions          `xml:"urn:oasis:names:tc:SAML:2.0:assertion Conditions"`
	AuthnStatements     []AuthnStatement     `xml:"urn:oasis:names:tc:SAML:2.0:assertion AuthnStatement"`
	AttributeStatements []AttributeStatement `xml:"urn:oasis:names:tc:SAML:2.0:assertion AttributeStatement"`
}

// Subject represents the SAML object of the same name.
//
// See http://docs.oasis-open.org/security/saml/v2.0/saml-core-2.0-os.pdf §2.4.1
type Subject struct {
	XMLName              xml.Name              `xml:"urn:oasis:names:tc:SAML:2.0:assertion Subject"`
	NameID               *NameID               `xml:"urn:oasis:names:tc:SAML:2.0:assertion NameID"`
	SubjectConfirmations []SubjectConfirmation `xml:"urn:oasis:names:tc:SAML:2.0:assertion SubjectConfirmation"`
}

// Element returns an etree.Element representing the object in XML form.
func (s *Subject) Element() *etree.Element {
	el := etree.NewElement("saml:Subject")
	if s.NameID != nil {
		el.AddChild(s.NameID.Element())
	}
	return el
}

// NameID represents the SAML object of the same name.
//
// See http://docs.oasis-open.org/security/saml/v2.0/saml-core-2.0-os.pdf §2.2.3
type NameID struct {
	Format          string `xml:"Format,attr"`
	NameQualifier   string `xml:"NameQualifier,attr"`
	SPNameQualifier string `xml:"SPNameQualifier,attr"`
	Value           string `xml:",chardata"`
}

// Element returns an etree.Element representing the object in XML form.
func (n *NameID) Element() *etree.Element {
	el := etree.NewElement("saml:NameID")
	if n.Format != "" {
		el.CreateAttr("Format", n.Format)
	}
	if n.NameQualifier != "" {
		el.CreateAttr("NameQualifier", n.NameQualifier)
	}
	if n.SPNameQualifier != "" {
		el.CreateAttr("SPNameQualifier", n.SPNameQualifier)
	}
	el.SetText(n.Value)
	return el
}

// SubjectConfirmation represents the SAML object of the same name.
type SubjectConfirmation struct {
	Method                  string                   `xml:"Method,attr"`
	SubjectConfirmationData *SubjectConfirmationData `xml:"urn:oasis:names:tc:SAML:2.0:assertion SubjectConfirmationData"`
}

// SubjectConfirmationData represents the SAML object of the same name.
type SubjectConfirmationData struct {
	NotBefore    *RelaxedTime `xml:"NotBefore,attr"`
	NotOnOrAfter *RelaxedTime `xml:"NotOnOrAfter,attr"`
	Recipient    string       `xml:"Recipient,attr"`
	InResponseTo string       `xml:"InResponseTo,attr"`
	Address      string       `xml:"Address,attr"`
}

// Conditions represents the SAML object of the same name.
//
// See http://docs.oasis-open.org/security/saml/v2.0/saml-core-2.0-os.pdf §2.5.1
type Conditions struct {
	NotBefore            *RelaxedTime          `xml:"NotBefore,attr"`
	NotOnOrAfter         *RelaxedTime          `xml:"NotOnOrAfter,attr"`
	AudienceRestrictions []AudienceRestriction `xml:"urn:oasis:names:tc:SAML:2.0:assertion AudienceRestriction"`
}

// AudienceRestriction represents the SAML object of the same name.
type AudienceRestriction struct {
	Audiences []Audience `xml:"urn:oasis:names:tc:SAML:2.0:assertion Audience"`
}

// Audience represents the SAML object of the same name.
type Audience struct {
	Value string `xml:",chardata"`
}

// AuthnStatement represents the SAML object of the same name.
//
// See http://docs.oasis-open.org/security/saml/v2.0/saml-core-2.0-os.pdf §2.7.2
type AuthnStatement struct {
	AuthnInstant        RelaxedTime  `xml:"AuthnInstant,attr"`
	SessionIndex        string       `xml:"SessionIndex,attr"`
	SessionNotOnOrAfter *RelaxedTime `xml:"SessionNotOnOrAfter,attr"`
	AuthnContext        AuthnContext `xml:"urn:oasis:names:tc:SAML:2.0:assertion AuthnContext"`
}

// AuthnContext represents the SAML object of the same name.
type AuthnContext struct {
	AuthnContextClassRef string `xml:"urn:oasis:names:tc:SAML:2.0:assertion AuthnContextClassRef"`
}

// AttributeStatement represents the SAML object of the same name.
//
// See http://docs.oasis-open.org/security/saml/v2.0/saml-core-2.0-os.pdf §2.7.3
type AttributeStatement struct {
	Attributes []Attribute `xml:"urn:oasis:names:tc:SAML:2.0:assertion Attribute"`
}

// Attribute represents the SAML object of the same name.
type Attribute struct {
	Name         string           `xml:"Name,attr"`
	NameFormat   string           `xml:"NameFormat,attr"`
	FriendlyName string           `xml:"FriendlyName,attr"`
	Values       []AttributeValue `xml:"urn:oasis:names:tc:SAML:2.0:assertion AttributeValue"`
}

// AttributeValue represents the SAML object of the same name. A value
// may carry a NameID instead of text, which in turn may arrive
// encrypted.
type AttributeValue struct {
	Type   string  `xml:"http://www.w3.org/2001/XMLSchema-instance type,attr"`
	Value  string  `xml:",chardata"`
	NameID *NameID `xml:"urn:oasis:names:tc:SAML:2.0:assertion NameID"`
}
