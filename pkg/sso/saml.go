package sso

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/url"
	"time"

	saml2 "github.com/russellhaering/gosaml2"
	dsig "github.com/russellhaering/goxmldsig"
)

// SAMLProvider implements SAML 2.0 logins.
type SAMLProvider struct {
	config  *ProviderConfig
	sp      *saml2.SAMLServiceProvider
	baseURL string
}

// NewSAMLProvider builds a SAML service provider from stored
// configuration. The IdP certificate must parse; a private key is only
// needed when request signing is enabled.
func NewSAMLProvider(config *ProviderConfig, baseURL string) (*SAMLProvider, error) {
	if config.SAMLConfig == nil {
		return nil, fmt.Errorf("saml config is required")
	}

	certBlock, _ := pem.Decode([]byte(config.SAMLConfig.Certificate))
	if certBlock == nil {
		return nil, fmt.Errorf("failed to decode certificate PEM")
	}
	cert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	certStore := dsig.MemoryX509CertificateStore{
		Roots: []*x509.Certificate{cert},
	}

	var keyStore dsig.X509KeyStore
	if config.SAMLConfig.PrivateKey != "" {
		keyBlock, _ := pem.Decode([]byte(config.SAMLConfig.PrivateKey))
		if keyBlock == nil {
			return nil, fmt.Errorf("failed to decode private key PEM")
		}
		privateKey, err := x509.ParsePKCS1PrivateKey(keyBlock.Bytes)
		if err != nil {
			pkcs8Key, err := x509.ParsePKCS8PrivateKey(keyBlock.Bytes)
			if err != nil {
				return nil, fmt.Errorf("failed to parse private key: %w", err)
			}
			var ok bool
			privateKey, ok = pkcs8Key.(*rsa.PrivateKey)
			if !ok {
				return nil, fmt.Errorf("private key is not RSA")
			}
		}
		keyStore = &dsig.TLSCertKeyStore{
			PrivateKey:  privateKey,
			Certificate: [][]byte{[]byte(config.SAMLConfig.Certificate)},
		}
	}

	sp := &saml2.SAMLServiceProvider{
		IdentityProviderSSOURL:      config.SAMLConfig.SSOURL,
		IdentityProviderIssuer:      config.SAMLConfig.EntityID,
		ServiceProviderIssuer:       baseURL + "/sso/metadata",
		AssertionConsumerServiceURL: callbackURL(baseURL, config),
		SignAuthnRequests:           config.SAMLConfig.SignRequests,
		AudienceURI:                 baseURL,
		IDPCertificateStore:         &certStore,
		SPKeyStore:                  keyStore,
	}
	if config.SAMLConfig.NameIDFormat != "" {
		sp.NameIdFormat = config.SAMLConfig.NameIDFormat
	}

	return &SAMLProvider{config: config, sp: sp, baseURL: baseURL}, nil
}

func callbackURL(baseURL string, config *ProviderConfig) string {
	return fmt.Sprintf("%s/auth/sso/%d/%s/callback", baseURL, config.TenantID, config.Name)
}

func (p *SAMLProvider) Type() ProviderType {
	return ProviderTypeSAML
}

func (p *SAMLProvider) Name() string {
	return p.config.Name
}

// InitiateLogin redirects to the IdP with the state carried as
// RelayState.
func (p *SAMLProvider) InitiateLogin(w http.ResponseWriter, r *http.Request, state string) error {
	authURL, err := p.sp.BuildAuthURL(state)
	if err != nil {
		return fmt.Errorf("failed to build auth URL: %w", err)
	}
	http.Redirect(w, r, authURL, http.StatusFound)
	return nil
}

// HandleCallback validates the posted SAML assertion and maps its
// attributes to an SSOUser.
func (p *SAMLProvider) HandleCallback(w http.ResponseWriter, r *http.Request) (*SSOUser, error) {
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("failed to parse form: %w", err)
	}

	samlResponse := r.FormValue("SAMLResponse")
	if samlResponse == "" {
		return nil, fmt.Errorf("missing SAMLResponse parameter")
	}
	assertionBytes, err := base64.StdEncoding.DecodeString(samlResponse)
	if err != nil {
		return nil, fmt.Errorf("failed to decode SAMLResponse: %w", err)
	}

	info, err := p.sp.RetrieveAssertionInfo(string(assertionBytes))
	if err != nil {
		return nil, fmt.Errorf("assertion validation failed: %w", err)
	}
	if info.WarningInfo != nil {
		if info.WarningInfo.InvalidTime {
			return nil, fmt.Errorf("assertion is outside its validity window")
		}
		if info.WarningInfo.NotInAudience {
			return nil, fmt.Errorf("assertion audience mismatch")
		}
	}

	mapping := p.config.AttributeMapping
	user := &SSOUser{
		ProviderID: p.config.ID,
		Provider:   p.config.Name,
		Attributes: make(map[string]string),
	}
	for _, attr := range info.Values {
		if len(attr.Values) == 0 {
			continue
		}
		user.Attributes[attr.Name] = attr.Values[0].Value

		switch attr.Name {
		case mapping.UserID:
			user.ExternalID = attr.Values[0].Value
		case mapping.Email:
			user.Email = attr.Values[0].Value
		case mapping.FullName:
			user.FullName = attr.Values[0].Value
		case mapping.FirstName:
			user.FirstName = attr.Values[0].Value
		case mapping.LastName:
			user.LastName = attr.Values[0].Value
		case mapping.Groups:
			for _, v := range attr.Values {
				user.Groups = append(user.Groups, v.Value)
			}
		}
	}

	if user.ExternalID == "" {
		user.ExternalID = info.NameID
	}
	if user.ExternalID == "" {
		return nil, fmt.Errorf("assertion carries no user identifier")
	}
	if user.Email == "" {
		return nil, fmt.Errorf("assertion carries no email")
	}

	return user, nil
}

// Logout redirects to the IdP's single logout endpoint when one is
// configured.
func (p *SAMLProvider) Logout(w http.ResponseWriter, r *http.Request, sessionIndex string) error {
	if p.config.SAMLConfig.SLOUrl == "" {
		return nil
	}

	logoutRequestXML := fmt.Sprintf(`<?xml version="1.0"?>
<samlp:LogoutRequest xmlns:samlp="urn:oasis:names:tc:SAML:2.0:protocol"
                     xmlns:saml="urn:oasis:names:tc:SAML:2.0:assertion"
                     ID="_%s"
                     Version="2.0"
                     IssueInstant="%s"
                     Destination="%s">
  <saml:Issuer>%s</saml:Issuer>
  <saml:NameID Format="urn:oasis:names:tc:SAML:2.0:nameid-format:transient"></saml:NameID>
  <samlp:SessionIndex>%s</samlp:SessionIndex>
</samlp:LogoutRequest>`,
		generateRequestID(),
		time.Now().UTC().Format("2006-01-02T15:04:05Z"),
		p.config.SAMLConfig.SLOUrl,
		p.sp.ServiceProviderIssuer,
		sessionIndex)

	logoutURL, err := url.Parse(p.config.SAMLConfig.SLOUrl)
	if err != nil {
		return fmt.Errorf("invalid SLO URL: %w", err)
	}
	query := logoutURL.Query()
	query.Set("SAMLRequest", base64.StdEncoding.EncodeToString([]byte(logoutRequestXML)))
	logoutURL.RawQuery = query.Encode()

	http.Redirect(w, r, logoutURL.String(), http.StatusFound)
	return nil
}

func generateRequestID() string {
	b := make([]byte, 20)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// ValidateConfig checks that the SAML settings are complete and the
// certificate material parses.
func (p *SAMLProvider) ValidateConfig() error {
	cfg := p.config.SAMLConfig
	if cfg == nil {
		return fmt.Errorf("saml config is required")
	}
	if cfg.EntityID == "" {
		return fmt.Errorf("entity_id is required")
	}
	if cfg.SSOURL == "" {
		return fmt.Errorf("sso_url is required")
	}
	if cfg.Certificate == "" {
		return fmt.Errorf("certificate is required")
	}

	block, _ := pem.Decode([]byte(cfg.Certificate))
	if block == nil {
		return fmt.Errorf("invalid certificate PEM format")
	}
	if _, err := x509.ParseCertificate(block.Bytes); err != nil {
		return fmt.Errorf("invalid certificate: %w", err)
	}

	if cfg.PrivateKey != "" {
		if keyBlock, _ := pem.Decode([]byte(cfg.PrivateKey)); keyBlock == nil {
			return fmt.Errorf("invalid private key PEM format")
		}
	}
	return nil
}

// Metadata returns the service provider metadata document served to
// IdP administrators.
func (p *SAMLProvider) Metadata() ([]byte, error) {
	metadataXML := fmt.Sprintf(`<?xml version="1.0"?>
<md:EntityDescriptor xmlns:md="urn:oasis:names:tc:SAML:2.0:metadata"
                     entityID="%s">
  <md:SPSSODescriptor protocolSupportEnumeration="urn:oasis:names:tc:SAML:2.0:protocol">
    <md:AssertionConsumerService Binding="urn:oasis:names:tc:SAML:2.0:bindings:HTTP-POST"
                                 Location="%s"
                                 index="1"/>
  </md:SPSSODescriptor>
</md:EntityDescriptor>`,
		p.sp.ServiceProviderIssuer,
		p.sp.AssertionConsumerServiceURL)
	return []byte(metadataXML), nil
}
