package services

import (
	"archive/zip"
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/Julienbatt/DringDring-sub000/internal/apperrors"
	"github.com/Julienbatt/DringDring-sub000/internal/models"
)

func aggregated(t *testing.T, f *fixture) map[string]models.BillingDocument {
	t.Helper()
	createDeliveries(t, f, f.shop, 3, 10)
	createDeliveries(t, f, f.indep, 5)
	_, err := f.aggregationService().Aggregate(context.Background(), f.region.ID, "2025-03", f.actor)
	require.NoError(t, err)
	return documentsByType(t, f, "2025-03")
}

func TestRenderPreviewKeepsDraft(t *testing.T) {
	f := newFixture(t)
	doc := aggregated(t, f)[models.RecipientCommune]

	pdf, filename, err := f.documentService().Render(context.Background(), doc.ID, true, f.actor)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(pdf, []byte("%PDF")))
	require.True(t, strings.HasPrefix(filename, "facture-commune-2025-03-"))

	var reloaded models.BillingDocument
	require.NoError(t, f.db.First(&reloaded, "id = ?", doc.ID).Error)
	require.Equal(t, models.BillingStatusDraft, reloaded.Status)
	require.Empty(t, reloaded.PDFURL)
	require.Zero(t, f.blob.Len())
}

func TestRenderFreezesDocument(t *testing.T) {
	f := newFixture(t)
	doc := aggregated(t, f)[models.RecipientCommune]
	svc := f.documentService()
	ctx := context.Background()

	pdf, _, err := svc.Render(ctx, doc.ID, false, f.actor)
	require.NoError(t, err)

	var reloaded models.BillingDocument
	require.NoError(t, f.db.First(&reloaded, "id = ?", doc.ID).Error)
	require.Equal(t, models.BillingStatusFrozen, reloaded.Status)
	require.NotEmpty(t, reloaded.PDFURL)
	require.Len(t, reloaded.PDFSHA256, 64)
	require.NotNil(t, reloaded.PDFGeneratedAt)

	// A second non-preview render returns the stored bytes verbatim.
	again, _, err := svc.Render(ctx, doc.ID, false, f.actor)
	require.NoError(t, err)
	require.Equal(t, pdf, again)
	require.Equal(t, 1, f.blob.Len())
}

func TestRenderUnknownDocument(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.documentService().Render(context.Background(), uuid.New(), true, f.actor)
	require.Error(t, err)
	require.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestRenderLastDocumentPromotesRun(t *testing.T) {
	f := newFixture(t)
	docs := aggregated(t, f)
	svc := f.documentService()
	ctx := context.Background()

	for _, doc := range docs {
		_, _, err := svc.Render(ctx, doc.ID, false, f.actor)
		require.NoError(t, err)
	}

	run, err := svc.billingRepo.GetRun(ctx, f.region.ID, "2025-03")
	require.NoError(t, err)
	require.Equal(t, models.BillingStatusFrozen, run.Status)

	// A frozen run refuses further aggregation.
	_, err = f.aggregationService().Aggregate(ctx, f.region.ID, "2025-03", f.actor)
	require.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))
}

func TestListDocumentsFilter(t *testing.T) {
	f := newFixture(t)
	aggregated(t, f)
	svc := f.documentService()
	ctx := context.Background()

	all, err := svc.List(ctx, "2025-03", "")
	require.NoError(t, err)
	require.Len(t, all, 4)

	communes, err := svc.List(ctx, "2025-03", models.RecipientCommune)
	require.NoError(t, err)
	require.Len(t, communes, 1)

	none, err := svc.List(ctx, "2025-04", "")
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestZipArchive(t *testing.T) {
	f := newFixture(t)
	docs := aggregated(t, f)
	svc := f.documentService()
	ctx := context.Background()

	// Mix stored and draft documents in the same archive.
	_, _, err := svc.Render(ctx, docs[models.RecipientCommune].ID, false, f.actor)
	require.NoError(t, err)

	archive, filename, err := svc.Zip(ctx, "2025-03", "")
	require.NoError(t, err)
	require.Equal(t, "factures-2025-03.zip", filename)

	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	require.NoError(t, err)
	require.Len(t, zr.File, 4)
	for _, zf := range zr.File {
		require.True(t, strings.HasPrefix(zf.Name, "facture-"))
		require.True(t, strings.HasSuffix(zf.Name, ".pdf"))
	}

	// Drafts stay drafts after archiving.
	var drafts int64
	require.NoError(t, f.db.Model(&models.BillingDocument{}).
		Where("status = ?", models.BillingStatusDraft).Count(&drafts).Error)
	require.EqualValues(t, 3, drafts)
}

func TestZipEmptyMonth(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.documentService().Zip(context.Background(), "2025-07", "")
	require.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}
