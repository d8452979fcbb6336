package database

import (
	"time"

	"github.com/lib/pq"
)

type Model struct {
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Instance is a registered CSW endpoint, stored in the master table
type Instance struct {
	Model

	ID            uint    `json:"id" gorm:"primaryKey"`
	URL           string  `json:"url"`
	PageLimit     int     `json:"limit" gorm:"type:smallint"`
	Version       string  `json:"version"`
	Type          string  `json:"type"` // "get" or "post"
	Prefix        string  `json:"prefix" gorm:"uniqueIndex"`
	LongName      string  `json:"longName"`
	Note          *string `json:"note"`
	Active        bool    `json:"active"`
	SpecialParams *string `json:"specialParams"`
	RateLimit     *int    `json:"rateLimit"`
}

// Harvest logs one scheduled run over all active instances
type Harvest struct {
	Date      time.Time `json:"date" gorm:"primaryKey;type:timestamptz"`
	Instances int       `json:"instances"`
	Pages     int       `json:"pages"`
	Failed    int       `json:"failed"`
	New       int       `json:"new"`
	Updated   int       `json:"updated"`
	Ignored   int       `json:"ignored"`
	Complete  bool      `json:"complete"`
}

// The models below live in per-instance tables named "<prefix>_<table>" and
// are always accessed through tables.

type RecordRow struct {
	Model

	ID                    string         `json:"id" gorm:"primaryKey"`
	LanguageCode          *string        `json:"languageCode"`
	ParentIdentifier      *string        `json:"parentIdentifier"`
	HierarchyLevel        *string        `json:"hierarchyLevel"`
	HierarchyLevelName    *string        `json:"hierarchyLevelName"`
	DateStamp             *time.Time     `json:"dateStamp" gorm:"type:date"`
	Abstract              *string        `json:"abstract"`
	SRID                  pq.StringArray `json:"srid" gorm:"column:srid;type:text[]"`
	Purpose               pq.StringArray `json:"purpose" gorm:"type:text[]"`
	Edition               pq.StringArray `json:"edition" gorm:"type:text[]"`
	Title                 *string        `json:"title"`
	AlternateTitle        *string        `json:"alternateTitle"`
	Category              pq.StringArray `json:"category" gorm:"type:text[]"`
	SpatialResolution     pq.StringArray `json:"spatialResolution" gorm:"type:text[]"`
	SpatialType           pq.StringArray `json:"spatialType" gorm:"type:text[]"`
	GeographicDescription pq.StringArray `json:"geographicDescription" gorm:"type:text[]"`
	TemporalStart         *time.Time     `json:"temporalStart" gorm:"type:date"`
	TemporalEnd           *time.Time     `json:"temporalEnd" gorm:"type:date"`
	TemporalStartUnknown  bool           `json:"temporalStartUnknown"`
	TemporalEndUnknown    bool           `json:"temporalEndUnknown"`
	SpatialDescription    pq.StringArray `json:"spatialDescription" gorm:"type:text[]"`
	Geometry              *string        `json:"geometry,omitempty" gorm:"->;-:migration"` // WKT of the spatial column, filled by reads only
	State                 string         `json:"state"`
	Checksum              string         `json:"-"`
}

type QueueItem struct {
	ID      uint   `json:"id" gorm:"primaryKey"`
	URL     string `json:"url"`
	Options string `json:"options"` // JSON encoded csw.RequestOptions
	State   string `json:"state"`
}

type DateRow struct {
	ID       uint       `json:"-" gorm:"primaryKey"`
	RecordID string     `json:"-"`
	Date     *time.Time `json:"date" gorm:"type:date"`
	Type     *string    `json:"type"`
}

type ConstraintRow struct {
	ID       uint           `json:"-" gorm:"primaryKey"`
	RecordID string         `json:"-"`
	Type     string         `json:"type"`
	Value    pq.StringArray `json:"value" gorm:"type:text[]"`
}

type KeywordRow struct {
	ID     uint    `json:"id" gorm:"primaryKey"`
	Name   string  `json:"name"`
	Type   *string `json:"type"`
	Anchor *string `json:"anchor"`
}

type RecordKeyword struct {
	RecordID  string `gorm:"primaryKey"`
	KeywordID uint   `gorm:"primaryKey"`
}

type ResourceRow struct {
	ID                 uint    `json:"-" gorm:"primaryKey"`
	RecordID           string  `json:"-"`
	DistributionFormat *string `json:"distributionFormat"`
	URL                *string `json:"url"`
	ApplicationProfile *string `json:"applicationProfile"`
	Name               *string `json:"name"`
	Description        *string `json:"description"`
	Function           *string `json:"function"`
	Protocol           *string `json:"protocol"`
}

type ContactRow struct {
	ID             uint           `json:"id" gorm:"primaryKey"`
	UUID           pq.StringArray `json:"uuid" gorm:"column:uuid;type:text[]"`
	Name           pq.StringArray `json:"name" gorm:"type:text[]"`
	IndividualName pq.StringArray `json:"individualName" gorm:"type:text[]"`
	Position       pq.StringArray `json:"position" gorm:"type:text[]"`
	Phone          pq.StringArray `json:"phone" gorm:"type:text[]"`
	Fax            pq.StringArray `json:"fax" gorm:"type:text[]"`
	URL            pq.StringArray `json:"url" gorm:"type:text[]"`
	Email          pq.StringArray `json:"email" gorm:"type:text[]"`
	DeliveryPoint  pq.StringArray `json:"deliveryPoint" gorm:"type:text[]"`
	City           pq.StringArray `json:"city" gorm:"type:text[]"`
	AdminArea      pq.StringArray `json:"adminArea" gorm:"type:text[]"`
	Postcode       pq.StringArray `json:"postcode" gorm:"type:text[]"`
	Country        pq.StringArray `json:"country" gorm:"type:text[]"`
	Fingerprint    string         `json:"-"`
}

type RecordContact struct {
	RecordID  string
	ContactID uint
	Type      *string
}
