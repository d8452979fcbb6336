package csw

import (
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultVersion is used when a source does not name a protocol version
	DefaultVersion = "2.0.2"
	// PageTimeout bounds a single GetRecords page request
	PageTimeout = 5 * time.Minute
	// ProbeTimeout bounds the record count request
	ProbeTimeout = time.Minute

	outputSchema = "http://www.isotc211.org/2005/gmd"
	typeNames    = "gmd:MD_Metadata"
)

type getRecordsQuery struct {
	XMLName       xml.Name `xml:"csw:GetRecords"`
	CSW           string   `xml:"xmlns:csw,attr"`
	GMD           string   `xml:"xmlns:gmd,attr"`
	Service       string   `xml:"service,attr"`
	Version       string   `xml:"version,attr"`
	ResultType    string   `xml:"resultType,attr"`
	StartPosition int      `xml:"startPosition,attr"`
	MaxRecords    int      `xml:"maxRecords,attr"`
	OutputSchema  string   `xml:"outputSchema,attr"`
	Query         struct {
		TypeNames      string `xml:"typeNames,attr"`
		ElementSetName string `xml:"csw:ElementSetName"`
	} `xml:"csw:Query"`
}

func (s Source) version() string {
	if s.Version == "" {
		return DefaultVersion
	}
	return s.Version
}

// PageRequest builds the GetRecords request for maxRecords records starting
// at the 1-based position start
func (s Source) PageRequest(start, maxRecords int) (PageRequest, error) {
	switch s.Method {
	case MethodPost:
		body, err := s.getRecordsBody(start, maxRecords)
		if err != nil {
			return PageRequest{}, err
		}
		return PageRequest{
			URL: s.URL,
			Options: RequestOptions{
				Method:   http.MethodPost,
				Headers:  map[string]string{"Content-Type": "application/xml"},
				Body:     body,
				Timeout:  PageTimeout,
				Start:    start,
				MaxItems: maxRecords,
			},
		}, nil
	case MethodGet, "":
		return PageRequest{
			URL: s.getRecordsURL(start, maxRecords),
			Options: RequestOptions{
				Method:   http.MethodGet,
				Timeout:  PageTimeout,
				Start:    start,
				MaxItems: maxRecords,
			},
		}, nil
	default:
		return PageRequest{}, fmt.Errorf("unsupported request method %q", s.Method)
	}
}

func (s Source) getRecordsURL(start, maxRecords int) string {
	params := []string{
		"REQUEST=GetRecords",
		"SERVICE=CSW",
		"VERSION=" + url.QueryEscape(s.version()),
		"RESULTTYPE=results",
		"MAXRECORDS=" + strconv.Itoa(maxRecords),
		"typeNames=" + typeNames,
		"outputSchema=" + outputSchema,
		"elementSetName=full",
		"startPosition=" + strconv.Itoa(start),
	}

	sep := "?"
	if strings.Contains(s.URL, "?") {
		sep = "&"
	}

	u := s.URL + sep + strings.Join(params, "&")
	if s.SpecialParams != "" {
		u += "&" + strings.TrimPrefix(s.SpecialParams, "&")
	}
	return u
}

func (s Source) getRecordsBody(start, maxRecords int) (string, error) {
	q := getRecordsQuery{
		CSW:           "http://www.opengis.net/cat/csw/2.0.2",
		GMD:           outputSchema,
		Service:       "CSW",
		Version:       s.version(),
		ResultType:    "results",
		StartPosition: start,
		MaxRecords:    maxRecords,
		OutputSchema:  outputSchema,
	}
	q.Query.TypeNames = typeNames
	q.Query.ElementSetName = "full"

	data, err := xml.Marshal(q)
	if err != nil {
		return "", fmt.Errorf("failed to encode GetRecords body: %w", err)
	}
	return xml.Header + string(data), nil
}
