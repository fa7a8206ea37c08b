package lifecycle

import (
	"context"
	"io"

	"github.com/mmdatafocus/records_backend/query"
	"github.com/mmdatafocus/records_backend/reports"
	"github.com/mmdatafocus/records_backend/store"
	"github.com/mmdatafocus/records_backend/utils"
)

// Export writes every record matching p, up to the export limit, as xlsx.
// Pagination parameters in p are ignored.
func (c *Controller) Export(ctx context.Context, p query.Params, w io.Writer) (err error) {
	ctx, span := c.startSpan(ctx, "Export")
	defer func() { endSpan(span, err) }()

	if p.Deleted && !c.entity.SoftDelete {
		p.Deleted = false
	}
	b := c.scoped(ctx)
	p.PageSize = b.MaxPageSize

	var records []*store.Record
	for page := 1; len(records) < c.cfg.ExportLimit; page++ {
		p.Page = page
		q := b.Build(p)
		batch, total, err := c.deps.Store.List(ctx, c.entity, q)
		if err != nil {
			return utils.Internal(err)
		}
		for _, r := range batch {
			records = append(records, c.redact(r))
		}
		if len(batch) == 0 || int64(q.Offset()+len(batch)) >= total {
			break
		}
	}
	if len(records) > c.cfg.ExportLimit {
		records = records[:c.cfg.ExportLimit]
	}

	fields, _ := c.descriptors(ctx)
	return reports.ExportRecords(w, c.entity.Table, fields, records)
}
