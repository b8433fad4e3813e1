package orm

import (
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"

	"tombstone/internal/core/apperror"
	"tombstone/internal/domain/filter"
	"tombstone/internal/metadata"
)

// applyAdvancedFilters applies caller filter items to q.
// Only mapped columns are accepted.
func applyAdvancedFilters(q squirrel.SelectBuilder, dialect Dialect, def *metadata.EntityDef, items []filter.Item) (squirrel.SelectBuilder, error) {
	for _, item := range items {
		if !def.HasColumn(item.Field) {
			return q, apperror.NewValidation(fmt.Sprintf("invalid filter column: %s", item.Field)).
				WithDetail("entity", def.Name)
		}

		switch item.Operator {
		case filter.Equal, filter.InList:
			q = q.Where(squirrel.Eq{item.Field: item.Value})
		case filter.NotEqual, filter.NotInList:
			q = q.Where(squirrel.NotEq{item.Field: item.Value})
		case filter.LessOrEqual:
			q = q.Where(squirrel.LtOrEq{item.Field: item.Value})
		case filter.GreaterOrEqual:
			q = q.Where(squirrel.GtOrEq{item.Field: item.Value})
		case filter.Less:
			q = q.Where(squirrel.Lt{item.Field: item.Value})
		case filter.Greater:
			q = q.Where(squirrel.Gt{item.Field: item.Value})
		case filter.IsNull:
			q = q.Where(squirrel.Eq{item.Field: nil})
		case filter.IsNotNull:
			q = q.Where(squirrel.NotEq{item.Field: nil})
		case filter.Contains:
			q = q.Where(dialect.ContainsFold(item.Field, fmt.Sprintf("%%%v%%", item.Value), false))
		case filter.NotContains:
			q = q.Where(dialect.ContainsFold(item.Field, fmt.Sprintf("%%%v%%", item.Value), true))
		default:
			return q, apperror.NewValidation(fmt.Sprintf("unsupported filter operator: %s", item.Operator)).
				WithDetail("field", item.Field)
		}
	}

	return q, nil
}

// parseOrderBy validates orderBy against mapped columns.
// "-field" sorts descending; empty input sorts by id.
func parseOrderBy(def *metadata.EntityDef, orderBy string) (string, error) {
	if orderBy == "" {
		return metadata.KeyColumn + " ASC", nil
	}

	direction := "ASC"
	field := orderBy
	if strings.HasPrefix(orderBy, "-") {
		direction = "DESC"
		field = strings.TrimPrefix(orderBy, "-")
	} else if strings.HasPrefix(orderBy, "+") {
		field = strings.TrimPrefix(orderBy, "+")
	}

	field = strings.TrimSpace(field)
	if field == "" {
		return "", apperror.NewValidation("invalid orderBy").WithDetail("orderBy", orderBy)
	}
	if !def.HasColumn(field) {
		return "", apperror.NewValidation("invalid orderBy").WithDetail("orderBy", orderBy).WithDetail("field", field)
	}

	return field + " " + direction, nil
}
