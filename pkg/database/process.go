package database

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/iziplay/csw-harvester/pkg/csw"
	"github.com/iziplay/csw-harvester/pkg/tree"
	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Record row states
const (
	StateNew     = "new"
	StateUpdated = "updated"
)

const dateLayout = "2006-01-02"

// Outcome counts what happened to the records of one or more pages
type Outcome struct {
	New     int `json:"new"`
	Updated int `json:"updated"`
	Ignored int `json:"ignored"`
}

func (o *Outcome) Add(other Outcome) {
	o.New += other.New
	o.Updated += other.Updated
	o.Ignored += other.Ignored
}

func (o Outcome) Total() int {
	return o.New + o.Updated + o.Ignored
}

// ProcessRecords stores a page of records. Records are compared to their
// stored version and either inserted, replaced or ignored when unchanged.
// Every record is written in its own transaction; a failing record does not
// keep the others from being stored.
func (g *Gateway) ProcessRecords(ctx context.Context, prefix string, records []csw.Record) (Outcome, error) {
	t, err := tablesFor(prefix)
	if err != nil {
		return Outcome{}, err
	}

	out, err := processEach(ctx, prefix, records, func(rec csw.Record) (string, error) {
		return g.processRecord(ctx, t, rec)
	})
	if out.New+out.Updated > 0 {
		g.stats.invalidate(prefix)
	}
	return out, err
}

// processEach stores every record with store. A record that fails is logged
// and the remaining ones are still stored; the failures are returned joined.
func processEach(ctx context.Context, prefix string, records []csw.Record, store func(csw.Record) (string, error)) (Outcome, error) {
	var out Outcome
	var failures []error

	for _, rec := range records {
		if rec.ID == "" {
			slog.Warn("Skipping record without identifier", "prefix", prefix, "title", tree.GetFirst(rec.Title).String())
			out.Ignored++
			continue
		}

		state, err := store(rec)
		if err != nil {
			if ctx.Err() != nil {
				failures = append(failures, ctx.Err())
				break
			}
			slog.Error("Failed to process record", "prefix", prefix, "id", rec.ID, "error", err)
			failures = append(failures, fmt.Errorf("failed to process record %s: %w", rec.ID, err))
			continue
		}
		switch state {
		case StateNew:
			out.New++
		case StateUpdated:
			out.Updated++
		default:
			out.Ignored++
		}
	}
	return out, errors.Join(failures...)
}

// processRecord returns the state the record was stored with, or "" when it
// was left untouched
func (g *Gateway) processRecord(ctx context.Context, t tables, rec csw.Record) (string, error) {
	incoming := snapshotOf(rec)

	var state string
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing RecordRow
		err := tx.Table(t.records).Select("id", "date_stamp", "checksum").Where("id = ?", rec.ID).Take(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			state = StateNew
		case err != nil:
			return fmt.Errorf("failed to look up record: %w", err)
		default:
			var dates []DateRow
			if err := tx.Table(t.dates).Where("record_id = ?", rec.ID).Find(&dates).Error; err != nil {
				return fmt.Errorf("failed to load dates: %w", err)
			}
			if unchanged(storedSnapshot(existing, dates), incoming) {
				return nil
			}
			if err := deleteRecord(tx, t, rec.ID); err != nil {
				return err
			}
			state = StateUpdated
		}

		return insertRecord(tx, t, rec, state, incoming.checksum)
	})
	if err != nil {
		return "", err
	}
	return state, nil
}

func deleteRecord(tx *gorm.DB, t tables, id string) error {
	for _, name := range []string{t.recordContacts, t.recordKeywords, t.dates, t.resources, t.constraints} {
		if err := tx.Exec("DELETE FROM "+name+" WHERE record_id = ?", id).Error; err != nil {
			return fmt.Errorf("failed to delete from %s: %w", name, err)
		}
	}
	if err := tx.Exec("DELETE FROM "+t.records+" WHERE id = ?", id).Error; err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return nil
}

func insertRecord(tx *gorm.DB, t tables, rec csw.Record, state, checksum string) error {
	row := recordRow(rec, state, checksum)
	if err := tx.Table(t.records).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}

	if wkt, ok := polygon(rec.SpatialExtent); ok {
		err := tx.Exec("UPDATE "+t.records+" SET spatial = ST_ForceRHR(ST_GeomFromText(?, 4326)) WHERE id = ?", wkt, rec.ID).Error
		if err != nil {
			return fmt.Errorf("failed to set geometry: %w", err)
		}
	}

	if dates := dateRows(rec); len(dates) > 0 {
		if err := tx.Table(t.dates).Create(&dates).Error; err != nil {
			return fmt.Errorf("failed to insert dates: %w", err)
		}
	}

	if constraints := constraintRows(rec); len(constraints) > 0 {
		if err := tx.Table(t.constraints).Create(&constraints).Error; err != nil {
			return fmt.Errorf("failed to insert constraints: %w", err)
		}
	}

	if resources := resourceRows(rec); len(resources) > 0 {
		if err := tx.Table(t.resources).Create(&resources).Error; err != nil {
			return fmt.Errorf("failed to insert resources: %w", err)
		}
	}

	if err := insertKeywords(tx, t, rec); err != nil {
		return err
	}
	return insertContacts(tx, t, rec)
}

// insertKeywords links the record to shared keyword rows, creating the
// missing ones
func insertKeywords(tx *gorm.DB, t tables, rec csw.Record) error {
	for _, kw := range rec.Keywords {
		for _, term := range kw.Terms() {
			name, kind, anchor := sanitizeString(term.Name), sanitizePtr(term.Type), sanitizePtr(term.Anchor)

			var row KeywordRow
			err := tx.Table(t.keywords).
				Where("name = ? AND type IS NOT DISTINCT FROM ? AND anchor IS NOT DISTINCT FROM ?", name, kind, anchor).
				Take(&row).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				row = KeywordRow{Name: name, Type: kind, Anchor: anchor}
				err = tx.Table(t.keywords).Create(&row).Error
			}
			if err != nil {
				return fmt.Errorf("failed to upsert keyword %q: %w", name, err)
			}

			ref := RecordKeyword{RecordID: rec.ID, KeywordID: row.ID}
			if err := tx.Table(t.recordKeywords).Clauses(clause.OnConflict{DoNothing: true}).Create(&ref).Error; err != nil {
				return fmt.Errorf("failed to link keyword: %w", err)
			}
		}
	}
	return nil
}

// insertContacts links the record to shared contact rows. Contacts are the
// same when every stored field matches.
func insertContacts(tx *gorm.DB, t tables, rec csw.Record) error {
	type link struct {
		contact uint
		role    string
	}
	seen := make(map[link]bool)

	for _, c := range rec.Organisations {
		candidate := contactRow(c)

		var row ContactRow
		err := tx.Table(t.contacts).
			Where("fingerprint = ?", candidate.Fingerprint).
			Take(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			row = candidate
			err = tx.Table(t.contacts).Create(&row).Error
		}
		if err != nil {
			return fmt.Errorf("failed to upsert contact: %w", err)
		}

		role := tree.GetFirst(c.Type)
		key := link{contact: row.ID, role: role.String()}
		if seen[key] {
			continue
		}
		seen[key] = true

		ref := RecordContact{RecordID: rec.ID, ContactID: row.ID, Type: role.Ptr()}
		if err := tx.Table(t.recordContacts).Create(&ref).Error; err != nil {
			return fmt.Errorf("failed to link contact: %w", err)
		}
	}
	return nil
}

func recordRow(rec csw.Record, state, checksum string) RecordRow {
	ext := rec.TemporalExtent
	return RecordRow{
		ID:                    rec.ID,
		LanguageCode:          text(rec.LanguageCode),
		ParentIdentifier:      text(rec.ParentIdentifier),
		HierarchyLevel:        text(rec.HierarchyLevel),
		HierarchyLevelName:    text(rec.HierarchyLevelName),
		DateStamp:             parseDate(tree.GetFirst(rec.DateStamp)),
		Abstract:              text(rec.Abstract),
		SRID:                  texts(rec.SRID),
		Purpose:               texts(rec.Purpose),
		Edition:               texts(rec.Edition),
		Title:                 text(rec.Title),
		AlternateTitle:        text(rec.AlternateTitle),
		Category:              texts(rec.Category),
		SpatialResolution:     texts(rec.SpatialResolution),
		SpatialType:           texts(rec.SpatialType),
		GeographicDescription: texts(rec.GeographicDescription),
		TemporalStart:         parseDate(tree.GetFirst(ext.Start)),
		TemporalEnd:           parseDate(tree.GetFirst(ext.End)),
		TemporalStartUnknown:  !ext.StartUndetermined.IsEmpty(),
		TemporalEndUnknown:    !ext.EndUndetermined.IsEmpty(),
		SpatialDescription:    texts(rec.SpatialExtent.Description),
		State:                 state,
		Checksum:              checksum,
	}
}

func dateRows(rec csw.Record) []DateRow {
	var rows []DateRow
	for _, d := range rec.Dates {
		rows = append(rows, DateRow{
			RecordID: rec.ID,
			Date:     parseDate(tree.GetFirst(d.Date)),
			Type:     text(d.Type),
		})
	}
	return rows
}

func constraintRows(rec csw.Record) []ConstraintRow {
	var rows []ConstraintRow
	for _, c := range rec.Constraints {
		rows = append(rows, ConstraintRow{
			RecordID: rec.ID,
			Type:     string(c.Type),
			Value:    texts(c.Value),
		})
	}
	return rows
}

func resourceRows(rec csw.Record) []ResourceRow {
	var rows []ResourceRow
	for _, res := range rec.Resources {
		for _, l := range res.Links() {
			rows = append(rows, ResourceRow{
				RecordID:           rec.ID,
				DistributionFormat: sanitizePtr(l.DistributionFormat),
				URL:                sanitizePtr(l.URL),
				ApplicationProfile: sanitizePtr(l.ApplicationProfile),
				Name:               sanitizePtr(l.Name),
				Description:        sanitizePtr(l.Description),
				Function:           sanitizePtr(l.Function),
				Protocol:           sanitizePtr(l.Protocol),
			})
		}
	}
	return rows
}

func contactRow(c csw.Contact) ContactRow {
	row := ContactRow{
		UUID:           texts(c.ID),
		Name:           texts(c.Name),
		IndividualName: texts(c.IndividualName),
		Position:       texts(c.Position),
		Phone:          texts(c.Phone),
		Fax:            texts(c.Fax),
		URL:            texts(c.URL),
		Email:          texts(c.Email),
		DeliveryPoint:  texts(c.DeliveryPoint),
		City:           texts(c.City),
		AdminArea:      texts(c.AdminArea),
		Postcode:       texts(c.Postcode),
		Country:        texts(c.Country),
	}
	row.Fingerprint = fingerprint(row)
	return row
}

// fingerprint hashes the stored fields of a contact
func fingerprint(row ContactRow) string {
	data, err := json.Marshal(row)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// datePair is a citation date reduced to its comparable form
type datePair struct {
	date string
	kind string
}

// snapshot holds the fields used to tell whether a record changed
type snapshot struct {
	dateStamp string
	dates     []datePair
	checksum  string
}

func snapshotOf(rec csw.Record) snapshot {
	s := snapshot{
		dateStamp: formatDate(parseDate(tree.GetFirst(rec.DateStamp))),
		checksum:  checksum(rec),
	}
	for _, d := range dateRows(rec) {
		s.dates = append(s.dates, pairOf(d))
	}
	return s
}

func storedSnapshot(row RecordRow, dates []DateRow) snapshot {
	s := snapshot{
		dateStamp: formatDate(row.DateStamp),
		checksum:  row.Checksum,
	}
	for _, d := range dates {
		s.dates = append(s.dates, pairOf(d))
	}
	return s
}

func pairOf(d DateRow) datePair {
	p := datePair{date: formatDate(d.Date)}
	if d.Type != nil {
		p.kind = *d.Type
	}
	return p
}

// unchanged reports whether the incoming record matches the stored one: same
// date stamp and the same citation dates. Records without any citation date
// fall back to comparing their content checksum.
func unchanged(stored, incoming snapshot) bool {
	if stored.dateStamp != incoming.dateStamp {
		return false
	}
	if len(stored.dates) == 0 && len(incoming.dates) == 0 {
		return stored.checksum == incoming.checksum
	}
	return slices.Equal(sortedPairs(stored.dates), sortedPairs(incoming.dates))
}

func sortedPairs(pairs []datePair) []datePair {
	out := slices.Clone(pairs)
	slices.SortFunc(out, func(a, b datePair) int {
		if c := strings.Compare(a.date, b.date); c != 0 {
			return c
		}
		return strings.Compare(a.kind, b.kind)
	})
	return out
}

// checksum hashes the normalized record
func checksum(rec csw.Record) string {
	data, err := json.Marshal(rec)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

var dateLayouts = []string{
	"2006",
	"2006-01",
	dateLayout,
	"2006-01-02T15:04:05.999999999",
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
}

// parseDate reads an ISO date, a bare year becoming the first of January.
// The result is a calendar date in UTC, nil when the value is not a date.
func parseDate(s tree.Scalar) *time.Time {
	str := strings.TrimSpace(s.String())
	if str == "" {
		return nil
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, str); err == nil {
			return calendarDate(t)
		}
	}
	if len(str) > len(dateLayout) {
		if t, err := time.Parse(dateLayout, str[:len(dateLayout)]); err == nil {
			return calendarDate(t)
		}
	}
	return nil
}

func calendarDate(t time.Time) *time.Time {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return &d
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(dateLayout)
}

// polygon builds the WKT rectangle of a bounding box, false when a side is
// missing or not a number
func polygon(ext csw.SpatialExtent) (string, bool) {
	if len(ext.Longitude) < 2 || len(ext.Latitude) < 2 {
		return "", false
	}

	var coords [4]string
	for i, s := range []tree.Scalar{ext.Longitude[0], ext.Longitude[1], ext.Latitude[0], ext.Latitude[1]} {
		f, ok := s.Float()
		if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
			return "", false
		}
		coords[i] = strconv.FormatFloat(f, 'f', -1, 64)
	}

	west, east, south, north := coords[0], coords[1], coords[2], coords[3]
	return fmt.Sprintf("POLYGON((%s %s,%s %s,%s %s,%s %s,%s %s))",
		west, south,
		east, south,
		east, north,
		west, north,
		west, south,
	), true
}

func text(v tree.Value) *string {
	return sanitizePtr(tree.GetFirst(v).Ptr())
}

func texts(v tree.Value) pq.StringArray {
	strs := v.Strings()
	if strs == nil {
		return nil
	}
	for i := range strs {
		strs[i] = sanitizeString(strs[i])
	}
	return pq.StringArray(strs)
}

func sanitizePtr(s *string) *string {
	if s == nil {
		return nil
	}
	clean := sanitizeString(*s)
	return &clean
}
