package database

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// Migrate executes every "*.<direction>.sql" file in migrations, ordered by
// name (reversed for down). It returns the names of the files that ran,
// also when a later file fails.
func Migrate(ctx context.Context, db *sql.DB, migrations fs.FS, direction Direction) ([]string, error) {
	if direction != Up && direction != Down {
		return nil, fmt.Errorf("unknown migration direction %q", direction)
	}

	entries, err := fs.ReadDir(migrations, ".")
	if err != nil {
		return nil, fmt.Errorf("read migration directory: %w", err)
	}

	var files []string
	suffix := fmt.Sprintf(".%s.sql", direction)
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), suffix) {
			files = append(files, entry.Name())
		}
	}

	sort.Strings(files)
	if direction == Down {
		for i, j := 0, len(files)-1; i < j; i, j = i+1, j-1 {
			files[i], files[j] = files[j], files[i]
		}
	}

	ran := make([]string, 0, len(files))
	for _, name := range files {
		content, err := fs.ReadFile(migrations, name)
		if err != nil {
			return ran, fmt.Errorf("read migration file %s: %w", name, err)
		}

		if _, err := db.ExecContext(ctx, string(content)); err != nil {
			return ran, fmt.Errorf("execute migration %s: %w", name, err)
		}
		ran = append(ran, name)
	}

	return ran, nil
}
