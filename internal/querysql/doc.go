// Package querysql compiles query.Options into parameterised SQLite
// statements over the entities table.
//
// Every value is passed as a placeholder argument, never interpolated.
// Identifiers that reach the SQL text (column names) come from fixed
// whitelists in package entity. Caller-supplied join and where clauses are
// appended verbatim and are trusted.
//
// Every fetch statement ends its ORDER BY with e.id so paging is
// deterministic even when the requested order has ties.
package querysql
