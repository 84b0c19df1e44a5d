package object

import (
	"bytes"
	"encoding/base64"
	"strings"

	"github.com/wxpppp/garage/pkg/types"
)

// ensureChecksumMatches validates the stream-computed MD5 against the
// content-md5 header and the stream-computed SHA-256 against the signed
// x-amz-content-sha256 value, each when supplied. content-md5 may arrive
// with surrounding quotes.
func ensureChecksumMatches(md5sum, sha256sum []byte, contentMD5 *string, contentSHA256 *types.Hash) error {
	if contentSHA256 != nil {
		if !bytes.Equal(contentSHA256[:], sha256sum) {
			return BadRequest("Unable to validate x-amz-content-sha256")
		}
	}
	if contentMD5 != nil {
		expected := strings.Trim(*contentMD5, `"`)
		if expected != base64.StdEncoding.EncodeToString(md5sum) {
			return BadRequest("Unable to validate content-md5")
		}
	}
	return nil
}
