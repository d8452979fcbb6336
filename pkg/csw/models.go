package csw

import (
	"time"

	"github.com/iziplay/csw-harvester/pkg/tree"
)

// Method is the HTTP verb used to query a catalogue
type Method string

const (
	MethodGet  Method = "get"
	MethodPost Method = "post"
)

// Source describes a CSW endpoint to harvest
type Source struct {
	URL           string `json:"url"`
	Limit         int    `json:"limit"`   // page size
	Version       string `json:"version"` // e.g.: "2.0.2"
	Method        Method `json:"type"`
	SpecialParams string `json:"specialParams,omitempty"` // appended verbatim to GET queries
}

// PageRequest is one GetRecords call, stored in the queue until processed
type PageRequest struct {
	URL     string         `json:"url"`
	Options RequestOptions `json:"options"`
}

// RequestOptions carries everything besides the URL needed to replay a request
type RequestOptions struct {
	Method   string            `json:"method"`
	Headers  map[string]string `json:"headers,omitempty"`
	Body     string            `json:"body,omitempty"`
	Timeout  time.Duration     `json:"timeout"`
	Start    int               `json:"startPosition"`
	MaxItems int               `json:"maxRecords"`
}

// Record is one normalized ISO 19139 metadata record
type Record struct {
	ID                    string         `json:"id"`
	LanguageCode          tree.Value     `json:"languageCode"`
	ParentIdentifier      tree.Value     `json:"parentIdentifier"`
	HierarchyLevel        tree.Value     `json:"hierarchyLevel"`
	HierarchyLevelName    tree.Value     `json:"hierarchyLevelName"`
	DateStamp             tree.Value     `json:"dateStamp"`
	Abstract              tree.Value     `json:"abstract"`
	Purpose               tree.Value     `json:"purpose"`
	Edition               tree.Value     `json:"edition"`
	SRID                  tree.Value     `json:"srid"`
	Title                 tree.Value     `json:"title"`
	AlternateTitle        tree.Value     `json:"alternateTitle"`
	Category              tree.Value     `json:"category"`
	SpatialResolution     tree.Value     `json:"spatialResolution"`
	SpatialType           tree.Value     `json:"spatialType"`
	GeographicDescription tree.Value     `json:"geographicDescription"`
	TemporalExtent        TemporalExtent `json:"temporalExtent"`
	SpatialExtent         SpatialExtent  `json:"spatialExtent"`

	Resources     []Resource   `json:"resources"`
	Dates         []Date       `json:"dates"`
	Keywords      []Keyword    `json:"keywords"`
	Organisations []Contact    `json:"organisations"`
	Constraints   []Constraint `json:"constraints"`
}

type TemporalExtent struct {
	Start             tree.Value `json:"start"`
	StartUndetermined tree.Value `json:"startUndetermined"`
	End               tree.Value `json:"end"`
	EndUndetermined   tree.Value `json:"endUndetermined"`
}

// SpatialExtent holds the bounding box as [west, east] longitudes and
// [south, north] latitudes
type SpatialExtent struct {
	Longitude   tree.Value `json:"longitude"`
	Latitude    tree.Value `json:"latitude"`
	Description tree.Value `json:"description"`
}

// Resource is one gmd:transferOptions block. The per-link fields are
// positional: index i of every field belongs to the i-th online resource.
type Resource struct {
	DistributionFormat tree.Value `json:"distributionFormat"`
	URL                tree.Value `json:"url"`
	ApplicationProfile tree.Value `json:"applicationProfile"`
	Name               tree.Value `json:"name"`
	Description        tree.Value `json:"description"`
	Function           tree.Value `json:"function"`
	Protocol           tree.Value `json:"protocol"`
}

// Link is a single online resource of a Resource
type Link struct {
	DistributionFormat *string `json:"distributionFormat"`
	URL                *string `json:"url"`
	ApplicationProfile *string `json:"applicationProfile"`
	Name               *string `json:"name"`
	Description        *string `json:"description"`
	Function           *string `json:"function"`
	Protocol           *string `json:"protocol"`
}

// Links zips the positional fields into one struct per online resource,
// keeping entries without a URL. A transfer option without online resources
// yields a single link carrying only the distribution format, which applies
// to every link.
func (r Resource) Links() []Link {
	n := max(len(r.URL), len(r.ApplicationProfile), len(r.Name), len(r.Description), len(r.Function), len(r.Protocol), 1)
	format := tree.GetFirst(r.DistributionFormat).Ptr()

	links := make([]Link, 0, n)
	for i := range n {
		links = append(links, Link{
			DistributionFormat: format,
			URL:                r.URL.At(i).Ptr(),
			ApplicationProfile: r.ApplicationProfile.At(i).Ptr(),
			Name:               r.Name.At(i).Ptr(),
			Description:        r.Description.At(i).Ptr(),
			Function:           r.Function.At(i).Ptr(),
			Protocol:           r.Protocol.At(i).Ptr(),
		})
	}
	return links
}

// Date is a citation date with its ISO date type code
type Date struct {
	Date tree.Value `json:"date"`
	Type tree.Value `json:"type"`
}

// Keyword is one gmd:descriptiveKeywords block
type Keyword struct {
	Name   tree.Value `json:"name"`
	Type   tree.Value `json:"type"`
	Anchor tree.Value `json:"anchor"`
}

// Term is a single keyword of a Keyword block
type Term struct {
	Name   string  `json:"name"`
	Type   *string `json:"type"`
	Anchor *string `json:"anchor"`
}

// Terms zips names with their anchors. A block carries one type code which
// applies to all of its keywords.
func (k Keyword) Terms() []Term {
	var terms []Term
	for i, n := range k.Name {
		if n.IsNull() {
			continue
		}
		terms = append(terms, Term{
			Name:   n.String(),
			Type:   tree.GetFirst(k.Type).Ptr(),
			Anchor: k.Anchor.At(i).Ptr(),
		})
	}
	return terms
}

// Contact is a gmd:CI_ResponsibleParty
type Contact struct {
	Type           tree.Value `json:"type"`
	Name           tree.Value `json:"name"`
	IndividualName tree.Value `json:"individualName"`
	Position       tree.Value `json:"position"`
	Phone          tree.Value `json:"phone"`
	Fax            tree.Value `json:"fax"`
	URL            tree.Value `json:"url"`
	Email          tree.Value `json:"email"`
	DeliveryPoint  tree.Value `json:"deliveryPoint"`
	City           tree.Value `json:"city"`
	AdminArea      tree.Value `json:"adminArea"`
	Postcode       tree.Value `json:"postcode"`
	Country        tree.Value `json:"country"`
	ID             tree.Value `json:"id"`
}

// ConstraintType names the kind of a resource constraint
type ConstraintType string

const (
	ConstraintUseLimitation     ConstraintType = "useLimitation"
	ConstraintUseConstraints    ConstraintType = "useConstraints"
	ConstraintOtherConstraints  ConstraintType = "otherConstraints"
	ConstraintAccessConstraints ConstraintType = "accessConstraints"
)

type Constraint struct {
	Type  ConstraintType `json:"type"`
	Value tree.Value     `json:"value"`
}
