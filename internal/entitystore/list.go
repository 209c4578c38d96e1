package entitystore

import (
	"context"
	"fmt"
	"regexp"

	"github.com/nounforge/entitykernel/internal/kernelerr"
	"github.com/nounforge/entitykernel/internal/model"
	"github.com/nounforge/entitykernel/internal/storage"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// fieldNamePattern restricts sort/filter field names accepted into a
// raw json_extract path expression, since field names are caller
// input. Dotted paths are not supported, matching spec.md §4.4's flat
// filter shape.
var fieldNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// builtinTimeFields are the only filter/sort keys resolved against
// native columns instead of the JSON payload (spec.md §4.4).
var builtinTimeFields = map[string]string{
	"$createdAt": "created_at",
	"$updatedAt": "updated_at",
}

// ListParams mirrors spec.md §4.4's list contract: a flat
// equality-only filter (AND-combined, null matches absent-or-null),
// a single sort pair, and limit/offset.
type ListParams struct {
	Filter    map[string]any
	SortField string
	SortDir   int
	Limit     int
	Offset    int
}

// ListResult bundles the page plus the pagination envelope spec.md
// §4.4 requires, computed against the same filter as the page itself.
type ListResult struct {
	Entities []*model.Entity
	Total    int64
	Limit    int
	Offset   int
	HasMore  bool
}

// List returns a filtered, sorted, paginated page of live entities.
// The filter is pushed down into the storage query via
// gorm.io/datatypes.JSONQuery so `total`/`hasMore` are computed under
// the same predicate as the page, never after the fact.
func (s *Store) List(ctx context.Context, entityType string, p ListParams) (ListResult, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}
	offset := p.Offset
	if offset < 0 {
		offset = 0
	}

	base := s.deps.DB.WithContext(ctx).Model(&model.EntityRow{}).
		Where("type = ? AND deleted_at IS NULL", entityType)
	base, err := applyFilter(base, p.Filter)
	if err != nil {
		return ListResult{}, err
	}

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return ListResult{}, kernelerr.Wrap(kernelerr.CodeInternal, "entitystore.list", err)
	}

	ordered := applySort(base.Session(&gorm.Session{}), p.SortField, p.SortDir, s.driver)
	var rows []model.EntityRow
	if err := ordered.Limit(limit).Offset(offset).Find(&rows).Error; err != nil {
		return ListResult{}, kernelerr.Wrap(kernelerr.CodeInternal, "entitystore.list", err)
	}

	entities := make([]*model.Entity, 0, len(rows))
	for i := range rows {
		e, err := model.EntityFromRow(&rows[i])
		if err != nil {
			return ListResult{}, kernelerr.Wrap(kernelerr.CodeInternal, "entitystore.list", err)
		}
		entities = append(entities, e)
	}

	return ListResult{
		Entities: entities,
		Total:    total,
		Limit:    limit,
		Offset:   offset,
		HasMore:  int64(offset+len(entities)) < total,
	}, nil
}

func applyFilter(q *gorm.DB, filter map[string]any) (*gorm.DB, error) {
	for field, value := range filter {
		if col, ok := builtinTimeFields[field]; ok {
			if value == nil {
				q = q.Where(col + " IS NULL")
			} else {
				q = q.Where(col+" = ?", value)
			}
			continue
		}
		if !fieldNamePattern.MatchString(field) {
			return nil, kernelerr.New(kernelerr.CodeBadInput, "entitystore.list", "invalid filter field: "+field, nil)
		}
		if value == nil {
			// json_extract returns NULL both when the key is absent and
			// when its value is JSON null, which is exactly the match
			// spec.md §4.4 wants for a nil filter value.
			q = q.Where(fmt.Sprintf("json_extract(data, '$.%s') IS NULL", field))
			continue
		}
		q = q.Where(datatypes.JSONQuery("data").Equals(value, field))
	}
	return q, nil
}

func applySort(q *gorm.DB, field string, dir int, driver storage.Driver) *gorm.DB {
	direction := "ASC"
	if dir < 0 {
		direction = "DESC"
	}
	if col, ok := builtinTimeFields[field]; ok {
		return q.Order(col + " " + direction)
	}
	if field == "" || !fieldNamePattern.MatchString(field) {
		return q.Order("created_at DESC")
	}
	if driver == storage.DriverPostgres {
		return q.Order(fmt.Sprintf("data->>'%s' %s", field, direction))
	}
	return q.Order(fmt.Sprintf("json_extract(data, '$.%s') %s", field, direction))
}
