package activity

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

var createTableRE = regexp.MustCompile(`(?i)create\s+table\s+if\s+not\s+exists\s+([a-zA-Z0-9_]+)`)

// Statements splits a migration script on ';', dropping blank lines and -- comments.
func Statements(script string) []string {
	var body strings.Builder
	for _, line := range strings.Split(script, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		body.WriteString(line)
		body.WriteByte('\n')
	}
	var stmts []string
	for _, part := range strings.Split(body.String(), ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}

// Tables lists the tables a migration script creates, in order.
func Tables(script string) []string {
	var tables []string
	for _, m := range createTableRE.FindAllStringSubmatch(script, -1) {
		tables = append(tables, m[1])
	}
	return tables
}

// Migrate runs every statement of script. The schema uses IF NOT EXISTS throughout,
// so applying it twice is harmless.
func Migrate(ctx context.Context, db Querier, script string) error {
	for i, stmt := range Statements(script) {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration statement %d: %w", i+1, err)
		}
	}
	return nil
}
