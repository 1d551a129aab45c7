// Package rid derives the store-assigned resource identifiers stamped on
// documents and offers by the local connectors.
package rid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash/fnv"
)

// Document computes the resource id for a document.
// The id is stable for a given database, collection and document id, so a
// document that is deleted and recreated keeps its resource id.
func Document(database, collection, id string) string {
	data := fmt.Sprintf("%s#%s#%s", database, collection, id)
	h := sha256.Sum256([]byte(data))
	return hex.EncodeToString(h[:12])
}

// Offer computes the short offer id for a collection link.
func Offer(collectionLink string) string {
	h := fnv.New32a()
	h.Write([]byte(collectionLink))
	return fmt.Sprintf("%08x", h.Sum32())
}
