package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

var ErrRecordNotFound = errors.New("record not found")

// recordColumns selects every record column plus the WKT form of the extent
const recordColumns = "*, ST_AsText(spatial) AS geometry"

// ContactLink is a contact together with the role it has for a record
type ContactLink struct {
	ContactRow
	Role *string `json:"role"`
}

// RecordDetail is a record with all of its child rows
type RecordDetail struct {
	RecordRow

	Dates       []DateRow       `json:"dates"`
	Resources   []ResourceRow   `json:"resources"`
	Keywords    []KeywordRow    `json:"keywords"`
	Contacts    []ContactLink   `json:"contacts"`
	Constraints []ConstraintRow `json:"constraints"`
}

// SearchRecords finds records whose title or abstract contains the query
// (case-insensitive). An empty query lists every record.
func (g *Gateway) SearchRecords(ctx context.Context, prefix, query string, limit, offset int) ([]RecordRow, int64, error) {
	t, err := tablesFor(prefix)
	if err != nil {
		return nil, 0, err
	}

	q := g.db.WithContext(ctx).Table(t.records)
	if s := strings.TrimSpace(query); s != "" {
		like := "%" + s + "%"
		q = q.Where("title ILIKE ? OR abstract ILIKE ?", like, like)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count records: %w", err)
	}

	records := []RecordRow{}
	if err := q.
		Select(recordColumns).
		Order("id").
		Limit(limit).
		Offset(offset).
		Find(&records).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to search records: %w", err)
	}

	return records, total, nil
}

// GetRecord loads one record with its dates, resources, keywords, contacts
// and constraints
func (g *Gateway) GetRecord(ctx context.Context, prefix, id string) (*RecordDetail, error) {
	t, err := tablesFor(prefix)
	if err != nil {
		return nil, err
	}

	db := g.db.WithContext(ctx)

	var detail RecordDetail
	err = db.Table(t.records).Select(recordColumns).Where("id = ?", id).Take(&detail.RecordRow).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}

	if err := db.Table(t.dates).Where("record_id = ?", id).Order("id").Find(&detail.Dates).Error; err != nil {
		return nil, fmt.Errorf("failed to get dates: %w", err)
	}
	if err := db.Table(t.resources).Where("record_id = ?", id).Order("id").Find(&detail.Resources).Error; err != nil {
		return nil, fmt.Errorf("failed to get resources: %w", err)
	}
	if err := db.Table(t.constraints).Where("record_id = ?", id).Order("id").Find(&detail.Constraints).Error; err != nil {
		return nil, fmt.Errorf("failed to get constraints: %w", err)
	}

	if err := db.Table(t.keywords+" AS k").
		Select("k.*").
		Joins("JOIN "+t.recordKeywords+" AS r ON r.keyword_id = k.id").
		Where("r.record_id = ?", id).
		Order("k.name").
		Find(&detail.Keywords).Error; err != nil {
		return nil, fmt.Errorf("failed to get keywords: %w", err)
	}

	if err := db.Table(t.contacts+" AS c").
		Select("c.*, r.type AS role").
		Joins("JOIN "+t.recordContacts+" AS r ON r.contact_id = c.id").
		Where("r.record_id = ?", id).
		Order("c.id").
		Find(&detail.Contacts).Error; err != nil {
		return nil, fmt.Errorf("failed to get contacts: %w", err)
	}

	return &detail, nil
}
