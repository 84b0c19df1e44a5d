/*
Package api exposes the object core over an S3-compatible HTTP surface:

	PUT    /{bucket}/{key}    store an object
	GET    /{bucket}/{key}    retrieve the latest visible version
	DELETE /{bucket}/{key}    write a delete marker (204 even for missing keys)
	POST   /{bucket}?delete   batch delete with per-key error aggregation

Request parsing stops at the headers and the batch-delete XML body; the
streaming body is handed to the core untouched. Responses carry
x-amz-version-id, a quoted ETag and the negotiated encryption headers.
Errors render as S3 error XML with AWS error codes.
*/
package api
