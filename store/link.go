package store

import (
	"fmt"
	"strings"
)

// DatabaseLink returns the link of a database.
func DatabaseLink(database string) string {
	return "dbs/" + database
}

// CollectionLink returns the link of a collection.
func CollectionLink(database, collection string) string {
	return "dbs/" + database + "/colls/" + collection
}

// DocumentLink returns the link of a document.
func DocumentLink(database, collection, id string) string {
	return CollectionLink(database, collection) + "/docs/" + id
}

// OfferLink returns the link of an offer.
func OfferLink(offerID string) string {
	return "offers/" + offerID
}

// ParseCollectionLink splits a collection link into its database and
// collection ids.
func ParseCollectionLink(link string) (database, collection string, err error) {
	parts := strings.Split(strings.Trim(link, "/"), "/")
	if len(parts) != 4 || parts[0] != "dbs" || parts[2] != "colls" || parts[1] == "" || parts[3] == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidLink, link)
	}
	return parts[1], parts[3], nil
}

// ParseDocumentLink splits a document link into its database, collection
// and document ids.
func ParseDocumentLink(link string) (database, collection, id string, err error) {
	parts := strings.Split(strings.Trim(link, "/"), "/")
	if len(parts) != 6 || parts[0] != "dbs" || parts[2] != "colls" || parts[4] != "docs" ||
		parts[1] == "" || parts[3] == "" || parts[5] == "" {
		return "", "", "", fmt.Errorf("%w: %q", ErrInvalidLink, link)
	}
	return parts[1], parts[3], parts[5], nil
}

// ParseOfferLink returns the offer id of an offer link.
func ParseOfferLink(link string) (string, error) {
	id, ok := strings.CutPrefix(strings.Trim(link, "/"), "offers/")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidLink, link)
	}
	return id, nil
}

// IDer is implemented by typed documents that expose their id.
type IDer interface {
	GetID() string
}

// resolveID extracts a document id from a bare id or a document.
// Unknown shapes yield "" and are left for the connector to reject.
func resolveID(idOrDoc any) string {
	switch v := idOrDoc.(type) {
	case string:
		return v
	case Entity:
		return v.ID()
	case Record:
		return v.ID()
	case map[string]any:
		id, _ := v[FieldID].(string)
		return id
	case IDer:
		return v.GetID()
	}
	return ""
}

// DatabaseLink returns the link of the configured database.
func (c *Client) DatabaseLink() string {
	return DatabaseLink(c.config.Database)
}

// CollectionLink returns the link of the configured collection.
func (c *Client) CollectionLink() string {
	return CollectionLink(c.config.Database, c.config.Collection)
}

// DocumentLink resolves a bare id or a document into the document's link
// within the configured collection.
func (c *Client) DocumentLink(idOrDoc any) string {
	return DocumentLink(c.config.Database, c.config.Collection, resolveID(idOrDoc))
}
