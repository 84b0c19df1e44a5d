/*
Package types defines the core identifier types shared by every layer of
garage: 256-bit UUIDs (version and bucket identity), 256-bit content hashes
(block addresses), and millisecond timestamps.

Identifiers marshal as lowercase hex so they can be stored as JSON and
returned in S3 response headers (x-amz-version-id) without conversion.
*/
package types
