package api

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wxpppp/garage/pkg/block"
	"github.com/wxpppp/garage/pkg/cluster"
	"github.com/wxpppp/garage/pkg/model"
	"github.com/wxpppp/garage/pkg/object"
	"github.com/wxpppp/garage/pkg/store"
)

func newTestServer(t *testing.T) (*Server, *store.BoltStore) {
	t.Helper()

	metaStore, err := store.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { metaStore.Close() })

	blockStore, err := block.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { blockStore.Close() })

	layout := cluster.SingleNode()
	core := object.New(metaStore, blockStore, func() *cluster.Layout { return layout }, object.Config{
		BlockSize:       1024,
		InlineThreshold: 128,
	})

	return NewServer(":0", core, metaStore, model.BucketQuotas{}), metaStore
}

func doRequest(t *testing.T, srv *Server, method, target string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestPutThenGetObject(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPut, "/bucket/hello.txt", []byte("hello"), map[string]string{
		"Content-Type": "text/plain",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	// md5("hello"), quoted, as S3 returns it
	assert.Equal(t, `"5d41402abc4b2a76b9719d911017c592"`, rec.Header().Get("ETag"))
	versionID := rec.Header().Get("x-amz-version-id")
	assert.Len(t, versionID, 64)

	get := doRequest(t, srv, http.MethodGet, "/bucket/hello.txt", nil, nil)
	require.Equal(t, http.StatusOK, get.Code)
	assert.Equal(t, "hello", get.Body.String())
	assert.Equal(t, "text/plain", get.Header().Get("Content-Type"))
	assert.Equal(t, versionID, get.Header().Get("x-amz-version-id"))
}

func TestPutStoresUserMetadata(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPut, "/bucket/obj", []byte("data"), map[string]string{
		"x-amz-meta-owner": "me",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	get := doRequest(t, srv, http.MethodGet, "/bucket/obj", nil, nil)
	assert.Equal(t, "me", get.Header().Get("x-amz-meta-owner"))
}

func TestPutChecksumMismatch(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPut, "/bucket/obj", []byte("hello"), map[string]string{
		headerContentSHA256: strings.Repeat("ab", 32),
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var errResp ErrorResponse
	require.NoError(t, xml.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, "InvalidRequest", errResp.Code)
	assert.Equal(t, "Unable to validate x-amz-content-sha256", errResp.Message)
}

func TestGetMissingObject(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/bucket/ghost", nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	var errResp ErrorResponse
	require.NoError(t, xml.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, "NoSuchKey", errResp.Code)
}

func TestDeleteReturnsNoContent(t *testing.T) {
	srv, _ := newTestServer(t)

	// deleting a missing key is a success for the public API
	rec := doRequest(t, srv, http.MethodDelete, "/bucket/ghost", nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	doRequest(t, srv, http.MethodPut, "/bucket/obj", []byte("data"), nil)
	rec = doRequest(t, srv, http.MethodDelete, "/bucket/obj", nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	get := doRequest(t, srv, http.MethodGet, "/bucket/obj", nil, nil)
	assert.Equal(t, http.StatusNotFound, get.Code)
}

func TestDeleteObjectsBatch(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, key := range []string{"a", "b"} {
		rec := doRequest(t, srv, http.MethodPut, "/bucket/"+key, []byte("data"), nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	body := `<Delete><Object><Key>a</Key></Object><Object><Key>b</Key></Object></Delete>`
	rec := doRequest(t, srv, http.MethodPost, "/bucket?delete", []byte(body), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/xml", rec.Header().Get("Content-Type"))

	var result DeleteResult
	require.NoError(t, xml.Unmarshal(rec.Body.Bytes(), &result))
	assert.Len(t, result.Deleted, 2)
	assert.Empty(t, result.Errors)
	for _, d := range result.Deleted {
		assert.NotEmpty(t, d.VersionID)
		assert.NotEmpty(t, d.DeleteMarkerVersionID)
	}
}

func TestDeleteObjectsQuiet(t *testing.T) {
	srv, _ := newTestServer(t)
	doRequest(t, srv, http.MethodPut, "/bucket/a", []byte("data"), nil)

	body := `<Delete><Quiet>true</Quiet><Object><Key>a</Key></Object></Delete>`
	rec := doRequest(t, srv, http.MethodPost, "/bucket?delete", []byte(body), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result DeleteResult
	require.NoError(t, xml.Unmarshal(rec.Body.Bytes(), &result))
	assert.Empty(t, result.Deleted)
	assert.Empty(t, result.Errors)
}

func TestDeleteObjectsInvalidXML(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv, http.MethodPost, "/bucket?delete", []byte("<not-xml"), nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var errResp ErrorResponse
	require.NoError(t, xml.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, "Invalid delete XML query", errResp.Message)
}

func TestDeleteObjectsPartialFailure(t *testing.T) {
	metaStore, err := store.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { metaStore.Close() })

	blockStore, err := block.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { blockStore.Close() })

	// the table layer fails for one key only
	failing := &failingStore{BoltStore: metaStore, failKey: "b"}
	layout := cluster.SingleNode()
	core := object.New(failing, blockStore, func() *cluster.Layout { return layout }, object.Config{
		BlockSize:       1024,
		InlineThreshold: 128,
	})
	srv := NewServer(":0", core, metaStore, model.BucketQuotas{})

	for _, key := range []string{"a", "b", "c"} {
		rec := doRequest(t, srv, http.MethodPut, "/bucket/"+key, []byte("data"), nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	body := `<Delete><Object><Key>a</Key></Object><Object><Key>b</Key></Object><Object><Key>c</Key></Object></Delete>`
	rec := doRequest(t, srv, http.MethodPost, "/bucket?delete", []byte(body), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result DeleteResult
	require.NoError(t, xml.Unmarshal(rec.Body.Bytes(), &result))
	require.Len(t, result.Deleted, 2)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "b", result.Errors[0].Key)
	assert.Equal(t, "InternalError", result.Errors[0].Code)
}

func TestRequestIDHeader(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/bucket/ghost", nil, nil)
	assert.NotEmpty(t, rec.Header().Get("x-amz-request-id"))
}

// failingStore fails object inserts that would write a delete marker for
// one specific key.
type failingStore struct {
	*store.BoltStore
	failKey string
}

func (s *failingStore) InsertObject(ctx context.Context, obj *model.Object) error {
	if obj.Key == s.failKey {
		for i := range obj.Versions {
			v := &obj.Versions[i]
			if v.Data != nil && v.Data.Kind == model.KindDeleteMarker {
				return fmt.Errorf("table layer: %w", errTableDown)
			}
		}
	}
	return s.BoltStore.InsertObject(ctx, obj)
}

var errTableDown = errors.New("table unavailable")
