// This is an example that implements a bitly-esque short link service
// behind SAML authentication.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/dchest/uniuri"
	log "github.com/sirupsen/logrus"
	"github.com/zenazn/goji"
	"github.com/zenazn/goji/web"

	"github.com/markfullmer/saml"
	"github.com/markfullmer/saml/samlhttp"
)

var links = map[string]Link{}

type Link struct {
	ShortLink string
	Target    string
	Owner     string
}

// CreateLink handles requests to create links
func CreateLink(w http.ResponseWriter, r *http.Request) {
	l := Link{
		ShortLink: uniuri.New(),
		Target:    r.FormValue("t"),
		Owner:     samlhttp.AttributeFromContext(r, "uid"),
	}
	links[l.ShortLink] = l
	fmt.Fprintf(w, "%s\n", l.ShortLink)
}

// ServeLink handles requests to redirect to a link
func ServeLink(w http.ResponseWriter, r *http.Request) {
	l, ok := links[strings.TrimPrefix(r.URL.Path, "/")]
	if !ok {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}
	http.Redirect(w, r, l.Target, http.StatusFound)
}

// ListLinks returns a list of the current user's links
func ListLinks(w http.ResponseWriter, r *http.Request) {
	account := samlhttp.AttributeFromContext(r, "uid")
	for _, l := range links {
		if l.Owner == account {
			fmt.Fprintf(w, "%s\n", l.ShortLink)
		}
	}
}

func main() {
	rootURLFlag := flag.String("url", "http://localhost:8000", "root URL of this service")
	keyPath := flag.String("key", "example.key", "path to the service provider private key")
	certPath := flag.String("cert", "example.cert", "path to the service provider certificate")
	idpMetadataPath := flag.String("idp-metadata", "idp-metadata.xml", "path to the identity provider metadata")
	flag.Parse()

	keyBuf, err := os.ReadFile(*keyPath)
	if err != nil {
		log.Fatal(err)
	}
	key, err := saml.ParsePrivateKey(keyBuf)
	if err != nil {
		log.Fatal(err)
	}
	certBuf, err := os.ReadFile(*certPath)
	if err != nil {
		log.Fatal(err)
	}
	cert, err := saml.ParseCertificate(certBuf)
	if err != nil {
		log.Fatal(err)
	}
	metadataBuf, err := os.ReadFile(*idpMetadataPath)
	if err != nil {
		log.Fatal(err)
	}
	idp, err := saml.ParseIdPMetadata(metadataBuf)
	if err != nil {
		log.Fatal(err)
	}

	rootURL, err := url.Parse(*rootURLFlag)
	if err != nil {
		log.Fatal(err)
	}
	m, err := samlhttp.New(samlhttp.Options{
		URL:         *rootURL,
		Key:         key,
		Certificate: cert,
		IdP:         *idp,
	})
	if err != nil {
		log.Fatal(err)
	}

	goji.Handle("/saml/*", m)
	goji.Get("/logout", http.HandlerFunc(m.StartLogout))
	goji.Get("/:link", http.HandlerFunc(ServeLink))

	authMux := web.New()
	authMux.Use(m.RequireAccount)
	authMux.Post("/", http.HandlerFunc(CreateLink))
	authMux.Get("/", http.HandlerFunc(ListLinks))
	goji.Handle("/", authMux)

	goji.Serve()
}
