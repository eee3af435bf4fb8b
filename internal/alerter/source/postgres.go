// filename: internal/alerter/source/postgres.go
package source

import (
	"context"

	"github.com/myhouse/alerter/internal/models"
)

// RuleLister читает таблицу правил; реализуется pg.Client
type RuleLister interface {
	ListRules(ctx context.Context) ([]models.RuleRecord, error)
}

// PostgresLoader читает правила из таблицы rules. Выключенные строки считаются удаленными // v1.0
type PostgresLoader struct {
	lister RuleLister
}

// NewPostgresLoader создает загрузчик таблицы правил // v1.0
func NewPostgresLoader(lister RuleLister) *PostgresLoader {
	return &PostgresLoader{lister: lister}
}

// Name возвращает имя источника // v1.0
func (l *PostgresLoader) Name() string {
	return "alerter/postgres"
}

// Load возвращает включенные правила // v1.0
func (l *PostgresLoader) Load(ctx context.Context) (map[string]string, error) {
	records, err := l.lister.ListRules(ctx)
	if err != nil {
		return nil, err
	}

	docs := make(map[string]string, len(records))
	for _, rec := range records {
		if !rec.Enabled {
			continue
		}
		docs[PrefixRules+rec.ID] = rec.YAML
	}
	return docs, nil
}
