package dbutil

import (
	"regexp"
	"strings"

	"github.com/didi/gendry/builder"
	"github.com/jmoiron/sqlx"
)

var mysqlLimit = regexp.MustCompile(`(?i)LIMIT\s+\?\s*,\s*\?`)

// Finalize turns a gendry query into postgres syntax: "?" placeholders become
// "$N" and the mysql "LIMIT offset,count" form becomes "LIMIT count OFFSET offset".
func Finalize(query string, args []interface{}) (string, []interface{}) {
	if loc := mysqlLimit.FindStringIndex(query); loc != nil {
		n := strings.Count(query[:loc[0]], "?")
		if n+1 < len(args) {
			args[n], args[n+1] = args[n+1], args[n]
			query = mysqlLimit.ReplaceAllString(query, "LIMIT ? OFFSET ?")
		}
	}
	return sqlx.Rebind(sqlx.DOLLAR, query), args
}

// Delete builds a postgres DELETE statement from a gendry where map.
func Delete(table string, where map[string]interface{}) (string, []interface{}, error) {
	query, args, err := builder.BuildDelete(table, where)
	if err != nil {
		return "", nil, err
	}
	query, args = Finalize(query, args)
	return query, args, nil
}
