// Package repo provides postgres access to the issues table
package repo

import (
	"context"
	"time"

	"civicpulse/internal/core/geo"
	perr "civicpulse/internal/platform/errors"
	"civicpulse/internal/platform/store"
	pstr "civicpulse/internal/platform/strings"
	"civicpulse/internal/services/issues/domain"
)

// PG implements the issues reader and writer ports over pgx
type PG struct {
	q store.Queryer
}

var (
	_ domain.ReaderPort = (*PG)(nil)
	_ domain.WriterPort = (*PG)(nil)
)

// NewPG binds a queryer (pool or tx) to the issues repository
func NewPG(q store.Queryer) *PG { return &PG{q: q} }

// nearbyLimit bounds how many candidates one dedup check considers
const nearbyLimit = 50

// Nearby returns open same-category issues inside the bounding box of the
// radius, newest first. The exact haversine cut happens in the dedup service
func (r *PG) Nearby(
	ctx context.Context,
	category domain.Category,
	lat, lng, radiusM float64,
	window time.Duration,
) ([]domain.NearbySummary, error) {
	dLat, dLng := geo.BoundingBox(lat, radiusM)
	since := time.Now().UTC().Add(-window)

	const sql = `
select id, category, latitude, longitude, created_at, status
from issues
where category = $1
and status = 'open'
and created_at >= $2
and latitude between $3 and $4
and longitude between $5 and $6
order by created_at desc
limit $7
`
	rows, err := r.q.Query(ctx, sql,
		string(category), since,
		lat-dLat, lat+dLat,
		lng-dLng, lng+dLng,
		nearbyLimit,
	)
	if err != nil {
		return nil, perr.FromPostgres(err, "query nearby issues")
	}
	defer rows.Close()

	var out []domain.NearbySummary
	for rows.Next() {
		var (
			s   domain.NearbySummary
			cat string
		)
		if err := rows.Scan(&s.ID, &cat, &s.Latitude, &s.Longitude, &s.CreatedAt, &s.Status); err != nil {
			return nil, perr.FromPostgres(err, "scan nearby issue")
		}
		s.Category = domain.Category(cat)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, perr.FromPostgres(err, "iterate nearby issues")
	}
	return out, nil
}

// Insert persists an accepted report as an open issue and returns its id
func (r *PG) Insert(ctx context.Context, rep domain.Report) (int64, error) {
	const sql = `
insert into issues (description, category, image_path, source, status, created_at, user_email, latitude, longitude)
values ($1, $2, $3, $4, 'open', now(), $5, $6, $7)
returning id
`
	var id int64
	err := r.q.QueryRow(ctx, sql,
		rep.Description,
		string(rep.Category),
		pstr.SQLNull(rep.ImagePath),
		rep.Source,
		pstr.SQLNull(rep.UserEmail),
		rep.Latitude,
		rep.Longitude,
	).Scan(&id)
	if err != nil {
		return 0, perr.FromPostgres(err, "insert issue")
	}
	return id, nil
}
