package services

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/Julienbatt/DringDring-sub000/config"
	"github.com/Julienbatt/DringDring-sub000/internal/apperrors"
	"github.com/Julienbatt/DringDring-sub000/internal/messaging"
	"github.com/Julienbatt/DringDring-sub000/internal/metrics"
	"github.com/Julienbatt/DringDring-sub000/internal/models"
	"github.com/Julienbatt/DringDring-sub000/internal/pdfgen"
	"github.com/Julienbatt/DringDring-sub000/internal/qrbill"
	"github.com/Julienbatt/DringDring-sub000/internal/repositories"
	"github.com/Julienbatt/DringDring-sub000/internal/search"
	"github.com/Julienbatt/DringDring-sub000/internal/storage"
	"github.com/Julienbatt/DringDring-sub000/internal/swissref"
	"github.com/Julienbatt/DringDring-sub000/internal/tracing"
)

// DocumentService materialises payor documents: rendering from the
// stored snapshots, freezing on first non-preview render and serving
// bulk archives.
type DocumentService struct {
	db          *gorm.DB
	cfg         config.Config
	billingRepo *repositories.BillingRepository
	blob        storage.BlobStore
	search      *search.ElasticClient
	publisher   messaging.Publisher
	metrics     *metrics.Metrics
	tracer      tracing.Tracer
}

// NewDocumentService creates a new document service
func NewDocumentService(
	db *gorm.DB,
	cfg config.Config,
	blob storage.BlobStore,
	es *search.ElasticClient,
	publisher messaging.Publisher,
	m *metrics.Metrics,
	tracer tracing.Tracer,
) *DocumentService {
	return &DocumentService{
		db:          db,
		cfg:         cfg,
		billingRepo: repositories.NewBillingRepository(db),
		blob:        blob,
		search:      es,
		publisher:   publisher,
		metrics:     m,
		tracer:      tracer,
	}
}

// Render returns the PDF bytes and download filename of a document.
// With preview the bytes are generated fresh and nothing is persisted;
// without preview a frozen document's stored bytes are returned
// verbatim and a draft document is frozen after its first upload.
func (s *DocumentService) Render(ctx context.Context, docID uuid.UUID, preview bool, actor Actor) ([]byte, string, error) {
	txn := s.tracer.StartTransaction("render-document")
	defer s.tracer.EndTransaction(txn)

	doc, err := s.billingRepo.GetDocument(ctx, docID)
	if err != nil {
		return nil, "", err
	}
	filename := documentFilename(doc)

	if !preview && doc.Status == models.BillingStatusFrozen && doc.PDFURL != "" {
		key := storage.DocumentKey(doc.PeriodMonth, doc.ID.String())
		stored, err := s.blob.Download(ctx, s.cfg.Blob.PDFBucket, key)
		if err == nil {
			return stored, filename, nil
		}
		// Missing object; fall through and regenerate from snapshots.
		log.Warn().Err(err).
			Str("document_id", doc.ID.String()).
			Msg("Stored PDF unavailable, regenerating")
	}

	pdf, err := pdfgen.Render(documentPage(doc))
	if err != nil {
		return nil, "", err
	}
	if preview {
		return pdf, filename, nil
	}

	sum := sha256.Sum256(pdf)
	sha := hex.EncodeToString(sum[:])
	key := storage.DocumentKey(doc.PeriodMonth, doc.ID.String())
	url, err := s.blob.Upload(ctx, s.cfg.Blob.PDFBucket, key, pdf, "application/pdf")
	if err != nil {
		return nil, "", apperrors.External(err, "failed to upload document PDF")
	}

	if err := s.billingRepo.FreezeDocument(ctx, doc.ID, url, sha); err != nil {
		return nil, "", err
	}
	doc.Status = models.BillingStatusFrozen
	doc.PDFURL = url
	doc.PDFSHA256 = sha

	s.metrics.IncrementCounter("documents_frozen")
	log.Info().
		Str("document_id", doc.ID.String()).
		Str("recipient_type", doc.RecipientType).
		Str("month", doc.PeriodMonth).
		Msg("Document frozen")

	if s.search != nil {
		if err := s.search.IndexDocument(ctx, doc); err != nil {
			log.Warn().Err(err).Msg("Failed to index document")
		}
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, messaging.EventDocumentFrozen, map[string]string{
			"document_id": doc.ID.String(),
			"month":       doc.PeriodMonth,
		}); err != nil {
			log.Warn().Err(err).Msg("Failed to publish document event")
		}
	}

	// Promote the run when its last child document froze.
	done, err := s.billingRepo.RunFullyFrozen(ctx, doc.RunID)
	if err != nil {
		return nil, "", err
	}
	if done {
		if err := s.billingRepo.PromoteRun(ctx, doc.RunID, actor.ID); err != nil {
			return nil, "", err
		}
		log.Info().Str("run_id", doc.RunID.String()).Msg("Run frozen")
	}

	return pdf, filename, nil
}

// List returns the documents of a month, optionally restricted to one
// recipient type.
func (s *DocumentService) List(ctx context.Context, monthKey, recipientType string) ([]models.BillingDocument, error) {
	if _, err := models.ParseMonth(monthKey); err != nil {
		return nil, err
	}
	return s.billingRepo.ListDocuments(ctx, monthKey, recipientType)
}

// Zip bundles the PDFs of a month into one archive. Frozen documents
// contribute their stored bytes; drafts are rendered as previews so the
// archive never mutates state.
func (s *DocumentService) Zip(ctx context.Context, monthKey, recipientType string) ([]byte, string, error) {
	docs, err := s.List(ctx, monthKey, recipientType)
	if err != nil {
		return nil, "", err
	}
	if len(docs) == 0 {
		return nil, "", apperrors.NotFound("no documents for %s", monthKey)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for i := range docs {
		doc := &docs[i]
		var pdf []byte
		if doc.Status == models.BillingStatusFrozen && doc.PDFURL != "" {
			key := storage.DocumentKey(doc.PeriodMonth, doc.ID.String())
			pdf, err = s.blob.Download(ctx, s.cfg.Blob.PDFBucket, key)
		}
		if pdf == nil {
			full, ferr := s.billingRepo.GetDocument(ctx, doc.ID)
			if ferr != nil {
				return nil, "", ferr
			}
			pdf, ferr = pdfgen.Render(documentPage(full))
			if ferr != nil {
				return nil, "", ferr
			}
		}
		w, err := zw.Create(documentFilename(doc))
		if err != nil {
			return nil, "", apperrors.Internal(err, "failed to build archive")
		}
		if _, err := w.Write(pdf); err != nil {
			return nil, "", apperrors.Internal(err, "failed to build archive")
		}
	}
	if err := zw.Close(); err != nil {
		return nil, "", apperrors.Internal(err, "failed to build archive")
	}

	return buf.Bytes(), fmt.Sprintf("factures-%s.zip", monthKey), nil
}

// documentPage reconstructs the printable page of a document from its
// stored snapshots, so re-rendering a frozen document is stable.
func documentPage(doc *models.BillingDocument) pdfgen.Document {
	creditor := qrbill.Party{
		Name:       doc.CreditorName,
		Street:     doc.CreditorStreet,
		HouseNo:    doc.CreditorHouseNo,
		PostalCode: doc.CreditorPostalCode,
		City:       doc.CreditorCity,
		Country:    doc.CreditorCountry,
	}
	recipient := qrbill.Party{
		Name:       doc.RecipientName,
		Street:     doc.RecipientStreet,
		PostalCode: doc.RecipientPostalCode,
		City:       doc.RecipientCity,
		Country:    doc.RecipientCountry,
	}

	lines := make([]pdfgen.Line, 0, len(doc.Lines))
	for _, l := range doc.Lines {
		lines = append(lines, pdfgen.Line{
			Date:       l.DeliveryDate,
			ShopName:   l.ShopName,
			ClientName: l.ClientName,
			Commune:    l.CommuneName,
			Bags:       l.Bags,
			Amount:     l.AmountDue,
		})
	}

	page := pdfgen.Document{
		Title:       documentTitle(doc.RecipientType),
		PeriodMonth: doc.PeriodMonth,
		Creditor:    creditor,
		Recipient:   recipient,
		Lines:       lines,
		AmountHT:    doc.AmountHT,
		AmountVAT:   doc.AmountVAT,
		AmountTTC:   doc.AmountTTC,
		VATRate:     doc.VATRate,
	}
	if doc.Reference != "" && doc.CreditorIBAN != "" {
		page.Bill = &qrbill.Bill{
			IBAN:      doc.CreditorIBAN,
			Creditor:  creditor,
			Debtor:    recipient,
			Amount:    doc.AmountTTC,
			Currency:  "CHF",
			Scheme:    swissref.Scheme(doc.ReferenceScheme),
			Reference: doc.Reference,
			Message:   doc.PaymentMessage,
		}
	}
	return page
}

func documentTitle(recipientType string) string {
	switch recipientType {
	case models.RecipientCommune:
		return "Facture communale des livraisons"
	case models.RecipientHQ:
		return "Facture des livraisons en enseigne"
	case models.RecipientShopIndep:
		return "Facture des livraisons"
	case models.RecipientInternal:
		return "Relevé interne du chiffre d'affaires"
	default:
		return "Facture des livraisons"
	}
}

func documentFilename(doc *models.BillingDocument) string {
	return fmt.Sprintf("facture-%s-%s-%s.pdf",
		strings.ToLower(doc.RecipientType), doc.PeriodMonth, doc.ID.String()[:8])
}
