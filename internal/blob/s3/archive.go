package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"

	"prediction-amm/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// SettlementArchive writes each settlement, payouts included, as one JSON
// object keyed by market and proof. It satisfies services.SettlementArchive.
type SettlementArchive struct {
	client *Client
	prefix string
}

// NewSettlementArchive stores objects under prefix (default "settlements").
func NewSettlementArchive(c *Client, prefix string) *SettlementArchive {
	if prefix == "" {
		prefix = "settlements"
	}
	return &SettlementArchive{client: c, prefix: prefix}
}

// Key returns the object key for a settlement.
func (a *SettlementArchive) Key(s *models.Settlement) string {
	return path.Join(a.prefix, s.MarketID, s.Proof+".json")
}

func (a *SettlementArchive) ArchiveSettlement(ctx context.Context, s *models.Settlement) error {
	body, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("s3blob: encode settlement %s: %w", s.MarketID, err)
	}

	key := a.Key(s)
	_, err = a.client.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.client.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"market-id": s.MarketID,
			"proof":     s.Proof,
		},
	})
	if err != nil {
		return fmt.Errorf("s3blob: put object %s: %w", key, err)
	}
	return nil
}
