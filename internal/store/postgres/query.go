package postgres

import (
	"strconv"
	"strings"

	"github.com/alanyoungcy/settled/internal/domain"
)

// listQuery appends the ListOpts time window on timeCol, the ordering and
// the page bounds to a SELECT with no WHERE clause.
func listQuery(selectFrom, timeCol, orderBy string, opts domain.ListOpts) (string, []any) {
	var (
		b     strings.Builder
		args  []any
		conds []string
	)
	param := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	b.WriteString(selectFrom)
	if opts.Since != nil {
		conds = append(conds, timeCol+" >= "+param(*opts.Since))
	}
	if opts.Until != nil {
		conds = append(conds, timeCol+" < "+param(*opts.Until))
	}
	if len(conds) > 0 {
		b.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}
	b.WriteString(" ORDER BY " + orderBy)
	if opts.Limit > 0 {
		b.WriteString(" LIMIT " + param(opts.Limit))
	}
	if opts.Offset > 0 {
		b.WriteString(" OFFSET " + param(opts.Offset))
	}
	return b.String(), args
}
