package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) GetProducts(ctx context.Context, ids []string) (map[string]Product, error) {
	if len(ids) == 0 {
		return map[string]Product{}, nil
	}

	params := ""
	args := make([]any, 0, len(ids))
	for i, id := range ids {
		if i > 0 {
			params += ","
		}
		params += fmt.Sprintf("$%d", i+1)
		args = append(args, id)
	}

	rows, err := r.DB.Query(ctx, `SELECT id, slug, title, product_type, lms_product_type, thumbnail, options, created_at, updated_at
	                              FROM catalog_products WHERE id IN (`+params+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]Product{}
	for rows.Next() {
		var p Product
		var opts []byte
		if err := rows.Scan(&p.ID, &p.Slug, &p.Title, &p.Type, &p.LMSType, &p.Thumbnail, &opts, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		if len(opts) > 0 {
			if err := json.Unmarshal(opts, &p.Options); err != nil {
				return nil, fmt.Errorf("decode options for product %s: %w", p.ID, err)
			}
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}
