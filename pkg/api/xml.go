package api

import (
	"encoding/xml"
)

const s3Xmlns = "http://s3.amazonaws.com/doc/2006-03-01/"

// DeleteRequest is the parsed body of a batch delete.
type DeleteRequest struct {
	XMLName xml.Name            `xml:"Delete"`
	Quiet   bool                `xml:"Quiet"`
	Objects []DeleteRequestItem `xml:"Object"`
}

// DeleteRequestItem is one key of a batch delete.
type DeleteRequestItem struct {
	Key string `xml:"Key"`
}

// DeleteResult is the response body of a batch delete.
type DeleteResult struct {
	XMLName xml.Name      `xml:"DeleteResult"`
	Xmlns   string        `xml:"xmlns,attr"`
	Deleted []Deleted     `xml:"Deleted"`
	Errors  []DeleteError `xml:"Error"`
}

// Deleted reports one successfully deleted key.
type Deleted struct {
	Key                   string `xml:"Key"`
	VersionID             string `xml:"VersionId"`
	DeleteMarkerVersionID string `xml:"DeleteMarkerVersionId"`
}

// DeleteError reports one failed key without failing the batch.
type DeleteError struct {
	Code    string `xml:"Code"`
	Key     string `xml:"Key"`
	Message string `xml:"Message"`
}

// ErrorResponse is the S3 error body.
type ErrorResponse struct {
	XMLName   xml.Name `xml:"Error"`
	Code      string   `xml:"Code"`
	Message   string   `xml:"Message"`
	RequestID string   `xml:"RequestId,omitempty"`
}

func toXMLWithHeader(v any) ([]byte, error) {
	body, err := xml.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}
