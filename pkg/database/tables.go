package database

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrInvalidPrefix = errors.New("invalid prefix")

	// prefixes end up in table names, so only plain identifiers are allowed
	prefixPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,39}$`)
)

// ValidatePrefix checks that prefix can be used as a table name prefix
func ValidatePrefix(prefix string) error {
	if !prefixPattern.MatchString(prefix) {
		return fmt.Errorf("%w: %q must be lowercase letters, digits or underscores and start with a letter", ErrInvalidPrefix, prefix)
	}
	return nil
}

// NewPrefix generates a random valid prefix, e.g.: "csw_3f2a9c0d41be"
func NewPrefix() string {
	return "csw_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// tables holds the table names of one instance
type tables struct {
	prefix         string
	records        string
	queue          string
	dates          string
	constraints    string
	keywords       string
	recordKeywords string
	resources      string
	contacts       string
	recordContacts string
}

func tablesFor(prefix string) (tables, error) {
	if err := ValidatePrefix(prefix); err != nil {
		return tables{}, err
	}
	return tables{
		prefix:         prefix,
		records:        prefix + "_records",
		queue:          prefix + "_queue",
		dates:          prefix + "_dates",
		constraints:    prefix + "_constraints",
		keywords:       prefix + "_keywords",
		recordKeywords: prefix + "_ref_records_keywords",
		resources:      prefix + "_resources",
		contacts:       prefix + "_contacts",
		recordContacts: prefix + "_ref_records_contacts",
	}, nil
}

// resetOrder lists the harvested tables, referencing tables first
func (t tables) resetOrder() []string {
	return []string{
		t.recordContacts,
		t.recordKeywords,
		t.dates,
		t.keywords,
		t.resources,
		t.contacts,
		t.constraints,
		t.records,
	}
}

func (t tables) migrate(tx *gorm.DB) error {
	models := []struct {
		table string
		model any
	}{
		{t.records, &RecordRow{}},
		{t.queue, &QueueItem{}},
		{t.dates, &DateRow{}},
		{t.constraints, &ConstraintRow{}},
		{t.keywords, &KeywordRow{}},
		{t.recordKeywords, &RecordKeyword{}},
		{t.resources, &ResourceRow{}},
		{t.contacts, &ContactRow{}},
		{t.recordContacts, &RecordContact{}},
	}
	for _, m := range models {
		if err := tx.Table(m.table).AutoMigrate(m.model); err != nil {
			return fmt.Errorf("failed to migrate %s: %w", m.table, err)
		}
	}

	// index names are global in a schema, so they carry the prefix
	statements := []string{
		fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS spatial geometry(Polygon, 4326)", t.records),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_spatial_idx ON %s USING GIST (spatial)", t.records, t.records),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_title_trgm_idx ON %s USING GIN (title gin_trgm_ops)", t.records, t.records),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_state_idx ON %s (state)", t.queue, t.queue),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_record_idx ON %s (record_id)", t.dates, t.dates),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_record_idx ON %s (record_id)", t.constraints, t.constraints),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_record_idx ON %s (record_id)", t.resources, t.resources),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_record_idx ON %s (record_id)", t.recordContacts, t.recordContacts),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_name_idx ON %s (name)", t.keywords, t.keywords),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_fingerprint_idx ON %s (fingerprint)", t.contacts, t.contacts),
	}
	for _, stmt := range statements {
		if err := tx.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to prepare %s tables: %w", t.prefix, err)
		}
	}
	return nil
}
