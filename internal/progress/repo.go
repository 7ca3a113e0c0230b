package progress

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ DB *pgxpool.Pool }

// RowsForBuyer membaca log playback mentah. Snapshot read tanpa lock:
// staleness antar read diterima (lihat agregator — pure atas snapshot).
func (r *Repo) RowsForBuyer(ctx context.Context, buyerID string) ([]Row, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT course_id, COALESCE(unit_id,''), COALESCE(video_id,''),
		       COALESCE(video_duration_seconds,0), covered_segments
		FROM video_progress WHERE buyer_id=$1
	`, buyerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var row Row
		var segments []byte
		if err := rows.Scan(&row.CourseID, &row.UnitID, &row.VideoID, &row.VideoDurationSeconds, &segments); err != nil {
			return nil, err
		}
		row.CoveredSegments = segments
		out = append(out, row)
	}
	return out, rows.Err()
}
