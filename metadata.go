package saml

import (
	"encoding/xml"

	"github.com/pkg/errors"
)

// EntitiesDescriptor represents a list of entity descriptors, as
// published by federations.
type EntitiesDescriptor struct {
	XMLName          xml.Name            `xml:"urn:oasis:names:tc:SAML:2.0:metadata EntitiesDescriptor"`
	EntityDescriptor []*EntityDescriptor `xml:"EntityDescriptor"`
}

// EntityDescriptor represents SAML metadata for one entity. Only the
// identity provider role is consumed; publication is out of scope.
type EntityDescriptor struct {
	XMLName          xml.Name          `xml:"urn:oasis:names:tc:SAML:2.0:metadata EntityDescriptor"`
	EntityID         string            `xml:"entityID,attr"`
	ValidUntil       RelaxedTime       `xml:"validUntil,attr,omitempty"`
	CacheDuration    Duration          `xml:"cacheDuration,attr,omitempty"`
	IDPSSODescriptor *IDPSSODescriptor `xml:"IDPSSODescriptor"`
}

// IDPSSODescriptor is the identity provider role element.
type IDPSSODescriptor struct {
	XMLName                    xml.Name        `xml:"urn:oasis:names:tc:SAML:2.0:metadata IDPSSODescriptor"`
	WantAuthnRequestsSigned    bool            `xml:"WantAuthnRequestsSigned,attr"`
	ProtocolSupportEnumeration string          `xml:"protocolSupportEnumeration,attr"`
	KeyDescriptor              []KeyDescriptor `xml:"KeyDescriptor"`
	NameIDFormat               []string        `xml:"NameIDFormat"`
	SingleSignOnService        []Endpoint      `xml:"SingleSignOnService"`
	SingleLogoutService        []Endpoint      `xml:"SingleLogoutService"`
}

// KeyDescriptor carries a key and its intended use.
type KeyDescriptor struct {
	Use               string             `xml:"use,attr"`
	KeyInfo           KeyInfo            `xml:"http://www.w3.org/2000/09/xmldsig# KeyInfo"`
	EncryptionMethods []EncryptionMethod `xml:"EncryptionMethod"`
}

// EncryptionMethod names an algorithm the key may be used with.
type EncryptionMethod struct {
	Algorithm string `xml:"Algorithm,attr"`
}

// KeyInfo carries the base64 DER certificate of a key descriptor.
type KeyInfo struct {
	XMLName     xml.Name `xml:"http://www.w3.org/2000/09/xmldsig# KeyInfo"`
	Certificate string   `xml:"X509Data>X509Certificate"`
}

// Endpoint describes a protocol endpoint of a role.
type Endpoint struct {
	Binding          string `xml:"Binding,attr"`
	Location         string `xml:"Location,attr"`
	ResponseLocation string `xml:"ResponseLocation,attr,omitempty"`
}

// knownBindings are the bindings endpoints are selected from, in
// preference order.
var knownBindings = []string{HTTPRedirectBinding, HTTPPostBinding}

// ParseIdPMetadata derives IdPSettings from a metadata document
// holding an EntityDescriptor, or an EntitiesDescriptor whose first
// entity with an identity provider role wins. Endpoints prefer the
// Redirect binding over POST; certificates marked for encryption only
// are skipped.
func ParseIdPMetadata(data []byte) (*IdPSettings, error) {
	descriptor := &EntityDescriptor{}
	if err := xml.Unmarshal(data, descriptor); err != nil {
		entities := &EntitiesDescriptor{}
		if err := xml.Unmarshal(data, entities); err != nil {
			return nil, errors.Wrap(err, "cannot parse metadata")
		}
		descriptor = nil
		for _, e := range entities.EntityDescriptor {
			if e.IDPSSODescriptor != nil {
				descriptor = e
				break
			}
		}
	}
	if descriptor == nil || descriptor.IDPSSODescriptor == nil {
		return nil, errors.New("metadata does not describe an identity provider")
	}
	role := descriptor.IDPSSODescriptor

	idp := &IdPSettings{EntityID: descriptor.EntityID}
	idp.SingleSignOnServiceURL, idp.SingleSignOnServiceBinding = selectEndpoint(role.SingleSignOnService)
	if slo, binding := selectEndpoint(role.SingleLogoutService); slo != "" {
		idp.SingleLogoutServiceURL, idp.SingleLogoutServiceBinding = slo, binding
		for _, endpoint := range role.SingleLogoutService {
			if endpoint.Binding == binding && endpoint.ResponseLocation != "" {
				idp.SingleLogoutServiceResponseURL = endpoint.ResponseLocation
			}
		}
	}

	for _, keyDescriptor := range role.KeyDescriptor {
		if keyDescriptor.Use == "encryption" {
			continue
		}
		if keyDescriptor.KeyInfo.Certificate == "" {
			continue
		}
		cert, err := ParseCertificate([]byte(keyDescriptor.KeyInfo.Certificate))
		if err != nil {
			return nil, errors.Wrap(err, "cannot parse metadata certificate")
		}
		idp.Certificates = append(idp.Certificates, cert)
	}
	if len(idp.Certificates) == 0 {
		return nil, errors.New("metadata carries no signing certificate")
	}
	return idp, nil
}

func selectEndpoint(endpoints []Endpoint) (location, binding string) {
	for _, known := range knownBindings {
		for _, endpoint := range endpoints {
			if endpoint.Binding == known {
				return endpoint.Location, endpoint.Binding
			}
		}
	}
	return "", ""
}
