package mysql

// SQL queries for MySQL metadata introspection. The schema argument is the
// connected database unless the table name was qualified.
const (
	queryListTables = `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = DATABASE()
		  AND table_type = 'BASE TABLE'
		ORDER BY table_name`

	queryGetColumns = `
		SELECT
			column_name,
			column_type,
			is_nullable,
			column_default,
			ordinal_position,
			column_key = 'PRI',
			extra,
			COALESCE(character_maximum_length, numeric_precision, 0),
			COALESCE(numeric_scale, 0)
		FROM information_schema.columns
		WHERE table_schema = COALESCE(?, DATABASE())
		  AND table_name = ?
		ORDER BY ordinal_position`

	queryPrimaryKey = `
		SELECT column_name
		FROM information_schema.key_column_usage
		WHERE table_schema = COALESCE(?, DATABASE())
		  AND table_name = ?
		  AND constraint_name = 'PRIMARY'
		ORDER BY ordinal_position`
)
