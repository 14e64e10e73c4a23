package docid

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
)

// blockSize is the read size used while hashing.
const blockSize = 64 * 1024

// Digest computes the content digest of everything r yields.
//
// Read errors from r are returned unchanged.
func Digest(r io.Reader) (DocumentID, error) {
	h := sha256.New()
	buf := make([]byte, blockSize)
	if _, err := io.CopyBuffer(h, onlyReader{r}, buf); err != nil {
		return DocumentID{}, err
	}
	return DocumentID{kind: KindDigest, value: hex.EncodeToString(h.Sum(nil))}, nil
}

// onlyReader hides WriterTo so CopyBuffer really reads in blockSize chunks.
type onlyReader struct {
	io.Reader
}
