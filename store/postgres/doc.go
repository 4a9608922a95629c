// Package postgres implements the store using pgx/v5 with raw SQL.
// Each queue document is one JSONB row in docket_queues; updates take the
// row lock with SELECT ... FOR UPDATE inside a transaction. Schema changes
// ship as embedded SQL migrations.
package postgres
