package topic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/huaxi/researchdb/internal/platform/db"
)

// RepoPG stores topics in the research_topic table. Indicator selections and
// flow graphs are JSONB documents.
type RepoPG struct {
	q db.Querier
}

func NewRepoPG(q db.Querier) *RepoPG {
	return &RepoPG{q: q}
}

const topicCols = `id, name, description, indicators, sankey_data, is_recommended, created_at, updated_at`

func scanTopic(row pgx.Row) (*ResearchTopic, error) {
	var t ResearchTopic
	var indicators, sankey []byte
	if err := row.Scan(&t.ID, &t.Name, &t.Description, &indicators, &sankey,
		&t.IsRecommended, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(indicators, &t.Indicators); err != nil {
		return nil, fmt.Errorf("decode indicators of topic %s: %w", t.ID, err)
	}
	if t.Indicators == nil {
		t.Indicators = []IndicatorValueRange{}
	}
	if len(sankey) > 0 {
		t.SankeyData = &SankeyData{}
		if err := json.Unmarshal(sankey, t.SankeyData); err != nil {
			return nil, fmt.Errorf("decode flow graph of topic %s: %w", t.ID, err)
		}
	}
	return &t, nil
}

func notFound(err error, id string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrTopicNotFound, id)
	}
	return err
}

func (r *RepoPG) List(ctx context.Context) ([]*ResearchTopic, error) {
	rows, err := r.q.Query(ctx, `SELECT `+topicCols+` FROM research_topic ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	defer rows.Close()
	out := []*ResearchTopic{}
	for rows.Next() {
		t, err := scanTopic(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *RepoPG) Get(ctx context.Context, id string) (*ResearchTopic, error) {
	t, err := scanTopic(r.q.QueryRow(ctx, `SELECT `+topicCols+` FROM research_topic WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, id)
	}
	return t, nil
}

func encodeTopic(t *ResearchTopic) (indicators, sankey []byte, err error) {
	if indicators, err = json.Marshal(t.Indicators); err != nil {
		return nil, nil, fmt.Errorf("encode indicators: %w", err)
	}
	if t.SankeyData != nil {
		if sankey, err = json.Marshal(t.SankeyData); err != nil {
			return nil, nil, fmt.Errorf("encode flow graph: %w", err)
		}
	}
	return indicators, sankey, nil
}

func (r *RepoPG) Create(ctx context.Context, t *ResearchTopic) error {
	indicators, sankey, err := encodeTopic(t)
	if err != nil {
		return err
	}
	_, err = r.q.Exec(ctx, `
		INSERT INTO research_topic (`+topicCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.ID, t.Name, t.Description, indicators, sankey, t.IsRecommended, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", t.ID, err)
	}
	return nil
}

// Update never writes is_recommended; that flag belongs to ToggleRecommended.
func (r *RepoPG) Update(ctx context.Context, t *ResearchTopic) (*ResearchTopic, error) {
	indicators, sankey, err := encodeTopic(t)
	if err != nil {
		return nil, err
	}
	stored, err := scanTopic(r.q.QueryRow(ctx, `
		UPDATE research_topic SET
			name = $2,
			description = $3,
			indicators = $4,
			sankey_data = $5,
			updated_at = $6
		WHERE id = $1
		RETURNING `+topicCols,
		t.ID, t.Name, t.Description, indicators, sankey, t.UpdatedAt))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound(err, t.ID)
		}
		return nil, fmt.Errorf("update topic %s: %w", t.ID, err)
	}
	return stored, nil
}

func (r *RepoPG) Delete(ctx context.Context, id string) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM research_topic WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete topic %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrTopicNotFound, id)
	}
	return nil
}

func (r *RepoPG) ToggleRecommended(ctx context.Context, id string) (*ResearchTopic, error) {
	t, err := scanTopic(r.q.QueryRow(ctx, `
		UPDATE research_topic SET is_recommended = NOT is_recommended
		WHERE id = $1
		RETURNING `+topicCols, id))
	if err != nil {
		return nil, notFound(err, id)
	}
	return t, nil
}
