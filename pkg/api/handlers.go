package api

import (
	"crypto/sha256"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/wxpppp/garage/pkg/encryption"
	"github.com/wxpppp/garage/pkg/model"
	"github.com/wxpppp/garage/pkg/object"
	"github.com/wxpppp/garage/pkg/types"
)

const (
	headerContentSHA256 = "x-amz-content-sha256"
	headerVersionID     = "x-amz-version-id"
	amzMetaPrefix       = "x-amz-meta-"

	// maxDeleteBodySize caps batch delete request bodies.
	maxDeleteBodySize = 1 << 20
)

// handlePut ingests an object and answers with its version id and etag.
func (s *Server) handlePut(w http.ResponseWriter, r *http.Request, bucket *model.Bucket, key string) {
	enc, err := encryption.NewFromHeaders(r.Header)
	if err != nil {
		s.writeError(w, r, object.BadRequest(err.Error()))
		return
	}

	contentSHA256, err := parseContentSHA256(r.Header)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var contentMD5 *string
	if v := r.Header.Get("content-md5"); v != "" {
		contentMD5 = &v
	}

	res, err := s.core.SaveStream(r.Context(), object.SaveStreamRequest{
		Bucket:        bucket,
		Key:           key,
		Headers:       headersFromRequest(r.Header),
		Encryption:    enc,
		Body:          r.Body,
		ContentMD5:    contentMD5,
		ContentSHA256: contentSHA256,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set(headerVersionID, res.VersionUUID.Hex())
	w.Header().Set("ETag", fmt.Sprintf("%q", res.Etag))
	enc.AddResponseHeaders(w.Header())
	w.WriteHeader(http.StatusOK)
}

// handleGet serves the latest visible version of an object.
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request, bucket *model.Bucket, key string) {
	enc, err := encryption.NewFromHeaders(r.Header)
	if err != nil {
		s.writeError(w, r, object.BadRequest(err.Error()))
		return
	}

	res, err := s.core.GetObject(r.Context(), bucket.ID, key, enc)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if res.Headers.ContentType != "" {
		w.Header().Set("Content-Type", res.Headers.ContentType)
	}
	for name, value := range res.Headers.Meta {
		w.Header().Set(amzMetaPrefix+name, value)
	}
	w.Header().Set("ETag", fmt.Sprintf("%q", res.Etag))
	w.Header().Set(headerVersionID, res.VersionUUID.Hex())
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Data)))
	enc.AddResponseHeaders(w.Header())
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(res.Data); err != nil {
		s.logger.Debug().Err(err).Str("key", key).Msg("Failed to write response body")
	}
}

// handleDelete writes a delete marker. Missing keys are a success: the
// response is 204 either way.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, bucket *model.Bucket, key string) {
	_, err := s.core.DeleteObject(r.Context(), bucket.ID, key)
	if err != nil && object.CodeOf(err) != object.CodeNoSuchKey {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDeleteObjects deletes a batch of keys, reporting per-key errors
// inline without failing the batch.
func (s *Server) handleDeleteObjects(w http.ResponseWriter, r *http.Request, bucket *model.Bucket) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxDeleteBodySize))
	if err != nil {
		s.writeError(w, r, object.BadRequest("Unable to read request body"))
		return
	}

	if declared, err := parseContentSHA256(r.Header); err != nil {
		s.writeError(w, r, err)
		return
	} else if declared != nil {
		computed := sha256.Sum256(body)
		if *declared != types.Hash(computed) {
			s.writeError(w, r, object.BadRequest("Request content hash does not match signed hash"))
			return
		}
	}

	var cmd DeleteRequest
	if err := xml.Unmarshal(body, &cmd); err != nil {
		s.writeError(w, r, object.BadRequest("Invalid delete XML query"))
		return
	}

	result := DeleteResult{Xmlns: s3Xmlns}
	for _, item := range cmd.Objects {
		res, err := s.core.DeleteObject(r.Context(), bucket.ID, item.Key)
		if err != nil {
			result.Errors = append(result.Errors, DeleteError{
				Code:    object.CodeOf(err).AWSCode(),
				Key:     item.Key,
				Message: object.MessageOf(err),
			})
			continue
		}
		if cmd.Quiet {
			continue
		}
		result.Deleted = append(result.Deleted, Deleted{
			Key:                   item.Key,
			VersionID:             res.DeletedVersion.Hex(),
			DeleteMarkerVersionID: res.DeleteMarkerUUID.Hex(),
		})
	}

	out, err := toXMLWithHeader(&result)
	if err != nil {
		s.writeError(w, r, object.InternalError(err))
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	w.Write(out)
}

// headersFromRequest captures the client headers replayed on GET.
func headersFromRequest(h http.Header) model.ObjectHeaders {
	headers := model.ObjectHeaders{
		ContentType: h.Get("Content-Type"),
	}
	for name, values := range h {
		lower := strings.ToLower(name)
		if strings.HasPrefix(lower, amzMetaPrefix) && len(values) > 0 {
			if headers.Meta == nil {
				headers.Meta = map[string]string{}
			}
			headers.Meta[strings.TrimPrefix(lower, amzMetaPrefix)] = values[0]
		}
	}
	return headers
}

// parseContentSHA256 decodes the x-amz-content-sha256 header. Unsigned
// and streaming payload markers carry no hash to verify.
func parseContentSHA256(h http.Header) (*types.Hash, error) {
	v := h.Get(headerContentSHA256)
	switch v {
	case "", "UNSIGNED-PAYLOAD":
		return nil, nil
	}
	if strings.HasPrefix(v, "STREAMING-") {
		return nil, nil
	}
	hash, err := types.ParseHash(v)
	if err != nil {
		return nil, object.BadRequest("Invalid content sha256 hash")
	}
	return &hash, nil
}
