package virustotal

import (
	_ "crypto/sha256"
	"encoding/hex"
	"io"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/malinsight/pkg/domain/model"
)

// Hash returns the lowercase hex digest of everything read from r
func (c *Client) Hash(r io.Reader) (string, error) {
	if !c.hash.Available() {
		return "", goerr.Wrap(model.ErrUnsupportedEnvironment, "hash function is not linked into this binary",
			goerr.V("hash", c.hash.String()),
		)
	}

	h := c.hash.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", goerr.Wrap(err, "failed to read sample for hashing")
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
