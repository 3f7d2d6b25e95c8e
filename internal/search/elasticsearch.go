package search

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/elastic/go-elasticsearch/v7/esapi"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/Julienbatt/DringDring-sub000/config"
	"github.com/Julienbatt/DringDring-sub000/internal/models"
)

// ElasticClient indexes frozen billing documents so back-office search
// does not hit the SQL store. A nil or disabled client is a no-op.
type ElasticClient struct {
	client  *elasticsearch.Client
	config  config.ElasticConfig
	enabled bool
}

// NewElasticClient creates a new Elasticsearch client
func NewElasticClient(cfg config.ElasticConfig) (*ElasticClient, error) {
	if !cfg.Enabled {
		return &ElasticClient{enabled: false}, nil
	}
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Elasticsearch client")
	}
	return &ElasticClient{client: client, config: cfg, enabled: true}, nil
}

// IndexDocument indexes one billing document. Indexing failures are
// surfaced to the caller but never block a freeze; callers log and
// continue.
func (c *ElasticClient) IndexDocument(ctx context.Context, doc *models.BillingDocument) error {
	if c == nil || !c.enabled {
		return nil
	}

	body := map[string]interface{}{
		"id":             doc.ID.String(),
		"run_id":         doc.RunID.String(),
		"period_month":   doc.PeriodMonth,
		"recipient_type": doc.RecipientType,
		"recipient_id":   doc.RecipientID.String(),
		"recipient_name": doc.RecipientName,
		"status":         doc.Status,
		"amount_ttc":     doc.AmountTTC.String(),
		"amount_ht":      doc.AmountHT.String(),
		"amount_vat":     doc.AmountVAT.String(),
		"reference":      doc.Reference,
		"pdf_url":        doc.PDFURL,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "failed to marshal billing document")
	}

	req := esapi.IndexRequest{
		Index:      config.FormatIndex(c.config, c.config.Index),
		DocumentID: doc.ID.String(),
		Body:       bytes.NewReader(data),
		Refresh:    "true",
	}
	res, err := req.Do(ctx, c.client)
	if err != nil {
		return errors.Wrap(err, "failed to execute Elasticsearch index request")
	}
	defer res.Body.Close()
	if res.IsError() {
		return errors.Errorf("Elasticsearch returned %s indexing document %s", res.Status(), doc.ID)
	}

	log.Debug().Str("document_id", doc.ID.String()).Msg("Indexed billing document")
	return nil
}
