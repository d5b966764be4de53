package segment

import "context"

// WithSchema binds declared column types by querying the database's
// catalog once for (DB, Schema, Table), returning a new segment carrying
// the result. Idempotent: calling it again re-queries.
func (s *TableSegment) WithSchema(ctx context.Context) (*TableSegment, error) {
	types, err := s.DB.SelectSchema(ctx, s.Schema, s.Table)
	if err != nil {
		return nil, err
	}
	return s.Override(func(c *TableSegment) {
		c.ColumnTypes = types
	}), nil
}
