package topic

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// missingRowQuerier records statements and answers every row lookup with
// pgx.ErrNoRows.
type missingRowQuerier struct {
	sql  []string
	args [][]any
}

func (q *missingRowQuerier) QueryRow(_ context.Context, sql string, args ...interface{}) pgx.Row {
	q.sql = append(q.sql, sql)
	q.args = append(q.args, args)
	return countRow{err: pgx.ErrNoRows}
}

func (q *missingRowQuerier) Query(context.Context, string, ...interface{}) (pgx.Rows, error) {
	return nil, errors.New("not used")
}

func (q *missingRowQuerier) Exec(_ context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	q.sql = append(q.sql, sql)
	q.args = append(q.args, args)
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func TestRepoPG_UpdateMissingTopic(t *testing.T) {
	q := &missingRowQuerier{}
	_, err := NewRepoPG(q).Update(context.Background(), &ResearchTopic{ID: "gone", Name: "x", IsRecommended: true})
	if !errors.Is(err, ErrTopicNotFound) {
		t.Fatalf("expected ErrTopicNotFound, got %v", err)
	}
	if len(q.sql) != 1 {
		t.Fatalf("expected one statement, got %d", len(q.sql))
	}
	stmt := q.sql[0]
	if !strings.Contains(stmt, "UPDATE research_topic") || strings.Contains(stmt, "INSERT") {
		t.Errorf("update must not insert: %s", stmt)
	}
	if strings.Contains(stmt, "is_recommended =") || strings.Contains(stmt, "created_at =") {
		t.Errorf("update must not write the recommendation or creation time: %s", stmt)
	}
	for _, a := range q.args[0] {
		if b, ok := a.(bool); ok && b {
			t.Error("recommendation flag passed to update")
		}
	}
}

func TestRepoPG_CreateInsertsOnly(t *testing.T) {
	q := &missingRowQuerier{}
	if err := NewRepoPG(q).Create(context.Background(), &ResearchTopic{ID: "n1", Name: "x"}); err != nil {
		t.Fatal(err)
	}
	if len(q.sql) != 1 || !strings.Contains(q.sql[0], "INSERT INTO research_topic") || strings.Contains(q.sql[0], "ON CONFLICT") {
		t.Errorf("unexpected create statement %v", q.sql)
	}
}
