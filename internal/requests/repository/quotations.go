package repository

import (
	"context"
	"errors"

	"repairdesk_backend/internal/requests/domain"
	"repairdesk_backend/platform/apperr"

	"github.com/jackc/pgx/v5"
)

const insertQuotationQuery = `INSERT INTO quotations (id, request_id, technician_id, total_price, created_at)
	VALUES ($1, $2, $3, $4, $5)`

const insertQuotationItemQuery = `INSERT INTO quotation_items
	(id, quotation_id, position, name, price, status, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`

const selectQuotationQuery = `SELECT id, request_id, technician_id, total_price, created_at
	FROM quotations
	WHERE request_id = $1`

const selectQuotationItemsQuery = `SELECT id, quotation_id, position, name, price, status, note, reason, report_by, updated_at
	FROM quotation_items
	WHERE quotation_id = $1
	ORDER BY position`

const selectQuotationItemsForUpdateQuery = selectQuotationItemsQuery + `
	FOR UPDATE`

const selectItemImagesQuery = `SELECT i.id, i.quotation_item_id, i.uploaded_by, i.image_url, i.created_at
	FROM quotation_item_images i
	JOIN quotation_items q ON q.id = i.quotation_item_id
	WHERE q.quotation_id = $1
	ORDER BY i.created_at, i.id`

const startPendingItemsQuery = `UPDATE quotation_items
	SET status = 'in_progress', report_by = $2, updated_at = now()
	WHERE quotation_id = $1 AND status = 'pending'
	RETURNING id`

const updateItemQuery = `UPDATE quotation_items
	SET status = $2, note = $3, reason = $4, report_by = $5, updated_at = now()
	WHERE id = $1`

const deleteItemImagesQuery = `DELETE FROM quotation_item_images WHERE quotation_item_id = $1`

const insertItemImageQuery = `INSERT INTO quotation_item_images (id, quotation_item_id, uploaded_by, image_url)
	VALUES ($1, $2, $3, $4)`

const insertItemLogQuery = `INSERT INTO quotation_item_logs
	(id, quotation_item_id, old_status, new_status, note, changed_by)
	VALUES ($1, $2, $3, $4, $5, $6)`

func (s *txStore) InsertQuotation(ctx context.Context, quotation domain.Quotation) error {
	if _, err := s.db.Exec(ctx, insertQuotationQuery,
		quotation.ID, quotation.RequestID, quotation.TechnicianID, quotation.TotalPrice, quotation.CreatedAt,
	); err != nil {
		return mapConstraintError(err, "insert quotation")
	}

	batch := &pgx.Batch{}
	for _, item := range quotation.Items {
		batch.Queue(insertQuotationItemQuery,
			item.ID, quotation.ID, item.Position, item.Name, item.Price, string(item.Status), item.UpdatedAt,
		)
	}
	if err := s.db.SendBatch(ctx, batch).Close(); err != nil {
		return mapConstraintError(err, "insert quotation items")
	}
	return nil
}

func (s *txStore) GetQuotationForUpdate(ctx context.Context, requestID string) (domain.Quotation, error) {
	return loadQuotation(ctx, s.db, requestID, selectQuotationItemsForUpdateQuery)
}

func (s *txStore) StartPendingItems(ctx context.Context, quotationID string, reportBy domain.Actor) ([]string, error) {
	rows, err := s.db.Query(ctx, startPendingItemsQuery, quotationID, reportBy.ID)
	if err != nil {
		return nil, mapConstraintError(err, "start pending items")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *txStore) UpdateItem(ctx context.Context, item domain.QuotationItem) error {
	_, err := s.db.Exec(ctx, updateItemQuery, item.ID, string(item.Status), item.Note, item.Reason, item.ReportBy)
	if err != nil {
		return mapConstraintError(err, "update quotation item")
	}
	return nil
}

// ReplaceItemImages swaps the item's evidence photos for the given set.
func (s *txStore) ReplaceItemImages(ctx context.Context, itemID string, images []domain.ItemImage) error {
	batch := &pgx.Batch{}
	batch.Queue(deleteItemImagesQuery, itemID)
	for _, img := range images {
		batch.Queue(insertItemImageQuery, img.ID, itemID, img.UploadedBy, img.URL)
	}
	if err := s.db.SendBatch(ctx, batch).Close(); err != nil {
		return mapConstraintError(err, "replace item images")
	}
	return nil
}

func (s *txStore) AppendItemLogs(ctx context.Context, logs []domain.ItemLog) error {
	if len(logs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, entry := range logs {
		var old *string
		if entry.OldStatus != nil {
			v := string(*entry.OldStatus)
			old = &v
		}
		batch.Queue(insertItemLogQuery, entry.ID, entry.ItemID, old, string(entry.NewStatus), entry.Note, entry.ChangedBy)
	}
	if err := s.db.SendBatch(ctx, batch).Close(); err != nil {
		return mapConstraintError(err, "append item logs")
	}
	return nil
}

// loadQuotation reads the quotation for requestID with its items and
// their images. itemsQuery decides whether item rows are locked.
func loadQuotation(ctx context.Context, db DBTX, requestID, itemsQuery string) (domain.Quotation, error) {
	var q domain.Quotation
	err := db.QueryRow(ctx, selectQuotationQuery, requestID).Scan(
		&q.ID, &q.RequestID, &q.TechnicianID, &q.TotalPrice, &q.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quotation{}, apperr.NotFound(errQuotationNotFound)
	}
	if err != nil {
		return domain.Quotation{}, mapConstraintError(err, "get quotation")
	}

	rows, err := db.Query(ctx, itemsQuery, q.ID)
	if err != nil {
		return domain.Quotation{}, mapConstraintError(err, "list quotation items")
	}
	index := make(map[string]int)
	for rows.Next() {
		var item domain.QuotationItem
		var status string
		if err := rows.Scan(
			&item.ID, &item.QuotationID, &item.Position, &item.Name, &item.Price,
			&status, &item.Note, &item.Reason, &item.ReportBy, &item.UpdatedAt,
		); err != nil {
			rows.Close()
			return domain.Quotation{}, err
		}
		parsed, err := domain.ParseItemStatus(status)
		if err != nil {
			rows.Close()
			return domain.Quotation{}, err
		}
		item.Status = parsed
		index[item.ID] = len(q.Items)
		q.Items = append(q.Items, item)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return domain.Quotation{}, err
	}

	imgRows, err := db.Query(ctx, selectItemImagesQuery, q.ID)
	if err != nil {
		return domain.Quotation{}, mapConstraintError(err, "list item images")
	}
	defer imgRows.Close()
	for imgRows.Next() {
		var img domain.ItemImage
		if err := imgRows.Scan(&img.ID, &img.ItemID, &img.UploadedBy, &img.URL, &img.CreatedAt); err != nil {
			return domain.Quotation{}, err
		}
		if i, ok := index[img.ItemID]; ok {
			q.Items[i].Images = append(q.Items[i].Images, img)
		}
	}
	return q, imgRows.Err()
}
