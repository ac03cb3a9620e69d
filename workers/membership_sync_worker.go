package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"ladder-challenge-system/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MembershipSyncClient mirrors changed membership records from the
// membership service into the local membership_mirrors table. The gate reads
// the mirror for its promotional-grandfathering check, so the mirror only
// ever widens access; staleness can never cause a denial.
type MembershipSyncClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	DB         *gorm.DB
}

func NewMembershipSyncClient(db *gorm.DB) *MembershipSyncClient {
	baseURL := os.Getenv("MEMBERSHIP_SERVICE_URL")
	if baseURL == "" {
		log.Fatal("MEMBERSHIP_SERVICE_URL environment variable is required")
	}
	token := os.Getenv("LADDER_SERVICE_TOKEN")
	if token == "" {
		log.Fatal("LADDER_SERVICE_TOKEN environment variable is required for membership sync")
	}

	return &MembershipSyncClient{
		BaseURL: baseURL,
		Token:   token,
		DB:      db,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *MembershipSyncClient) GetChangedMemberships(ctx context.Context, since time.Time) ([]models.MembershipMirror, error) {
	since = since.UTC()

	u, err := url.Parse(fmt.Sprintf("%s/api/v1/memberships/changed", c.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}

	q := u.Query()
	q.Set("since", since.Format(time.RFC3339))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("X-Service-Token", c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call membership service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("membership service returned status %d: %s", resp.StatusCode, string(body))
	}

	var response struct {
		Memberships []models.MembershipMirror `json:"memberships"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode membership service response: %w", err)
	}

	return response.Memberships, nil
}

// PollMemberships keeps the local mirror current.
func PollMemberships(ctx context.Context, client *MembershipSyncClient, pollInterval time.Duration) {
	log.Println("Starting membership polling (DB-backed)...")
	lastSyncTime := time.Now().UTC().Add(-24 * time.Hour)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Membership polling stopped.")
			return
		case <-ticker.C:
			logTime := time.Now().UTC()

			memberships, err := client.GetChangedMemberships(ctx, lastSyncTime)
			if err != nil {
				log.Printf("❌ Error polling memberships: %v", err)
				continue
			}

			count := len(memberships)
			if count == 0 {
				continue
			}

			for i := range memberships {
				memberships[i].SyncedAt = logTime
			}

			if err := client.DB.Clauses(
				clause.OnConflict{
					Columns: []clause.Column{{Name: "email"}},
					DoUpdates: clause.AssignmentColumns([]string{
						"active",
						"status",
						"is_promotional",
						"synced_at",
						"updated_at",
					}),
				},
			).Create(&memberships).Error; err != nil {
				log.Printf("❌ Failed to upsert %d membership(s) into membership_mirrors: %v", count, err)
				// Do NOT update lastSyncTime on failure — retry same window next tick
				continue
			}

			lastSyncTime = logTime
			log.Printf("✅ Upserted %d membership(s) into membership_mirrors table.", count)
		}
	}
}
