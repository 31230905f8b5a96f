package receipt

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/zombor/ahorro/internal/scanning"
)

// Repository defines the receipt collection the service works on
type Repository interface {
	Snapshotter
	Get(id string) (*Receipt, bool)
	Persist(r *Receipt, payload []byte, thumbnail image.Image) (*Receipt, error)
	Delete(id string) error
	ReadPayload(r *Receipt) ([]byte, error)
	ReadThumbnail(r *Receipt) ([]byte, error)
}

// Service handles receipt operations
type Service struct {
	processor *Processor
	repo      Repository
	asker     *Asker
	insights  InsightTracker
}

// NewService creates a new Service. Questions are answered by answerer over the repository's receipts.
func NewService(processor *Processor, repo Repository, answerer scanning.Answerer) *Service {
	return &Service{
		processor: processor,
		repo:      repo,
		asker:     NewAsker(repo, answerer),
	}
}

// AddReceipt processes a capture and stores it. Nothing is stored when processing fails.
func (s *Service) AddReceipt(ctx context.Context, in Input) (*Receipt, error) {
	processed, err := s.processor.Process(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("processing receipt: %w", err)
	}

	stored, err := s.repo.Persist(processed.Receipt, processed.Payload, processed.Thumbnail)
	if err != nil {
		slog.Error("Failed to persist receipt", "id", processed.Receipt.ID, "error", err)
		return nil, fmt.Errorf("persisting receipt: %w", err)
	}
	return stored, nil
}

// ListReceipts returns the receipts matching query, newest first. An empty query returns all.
func (s *Service) ListReceipts(query string) []*Receipt {
	return Search(s.repo.List(), query)
}

// GetReceipt retrieves a receipt by ID
func (s *Service) GetReceipt(id string) (*Receipt, error) {
	r, ok := s.repo.Get(id)
	if !ok {
		return nil, fmt.Errorf("getting receipt: %w: %s", ErrNotFound, id)
	}
	return r, nil
}

// DeleteReceipt removes a receipt and its files
func (s *Service) DeleteReceipt(id string) error {
	if err := s.repo.Delete(id); err != nil {
		return fmt.Errorf("deleting receipt: %w", err)
	}
	return nil
}

// ReceiptFile returns the stored media of a receipt and its MIME type
func (s *Service) ReceiptFile(id string) ([]byte, string, error) {
	r, err := s.GetReceipt(id)
	if err != nil {
		return nil, "", err
	}
	data, err := s.repo.ReadPayload(r)
	if err != nil {
		return nil, "", fmt.Errorf("getting receipt file: %w", err)
	}
	return data, r.MediaKind.MIMEType(), nil
}

// ReceiptThumbnail returns the JPEG thumbnail of a receipt
func (s *Service) ReceiptThumbnail(id string) ([]byte, error) {
	r, err := s.GetReceipt(id)
	if err != nil {
		return nil, err
	}
	data, err := s.repo.ReadThumbnail(r)
	if err != nil {
		return nil, fmt.Errorf("getting receipt thumbnail: %w", err)
	}
	return data, nil
}

// Insights returns the aggregates over all receipts
func (s *Service) Insights() Insights {
	return s.insights.Current(s.repo)
}

// Ask answers a natural-language question about the receipts
func (s *Service) Ask(ctx context.Context, query string) (string, error) {
	return s.asker.Ask(ctx, query)
}

// ExportXLSX renders the receipts matching query as a workbook
func (s *Service) ExportXLSX(query string) ([]byte, error) {
	data, err := ExportXLSX(s.ListReceipts(query))
	if err != nil {
		return nil, fmt.Errorf("exporting receipts: %w", err)
	}
	return data, nil
}
