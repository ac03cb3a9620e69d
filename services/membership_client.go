// ladder-challenge-system/services/membership_client.go
package services

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"
)

// MembershipStatus is the membership service's answer for one member.
type MembershipStatus struct {
	Active        bool   `json:"active"`
	Status        string `json:"status"`
	IsPromotional bool   `json:"is_promotional"`
}

// MembershipClient is the membership collaborator. Lookups may time out; the
// gate treats any error as fail-open.
type MembershipClient interface {
	GetMembershipStatus(email string) (*MembershipStatus, error)
}

type MembershipServiceClient struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func NewMembershipServiceClient(baseURL, token string) *MembershipServiceClient {
	return &MembershipServiceClient{
		BaseURL: baseURL,
		Token:   token,
		Client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// GetMembershipStatus calls /memberships/status on the membership service
func (c *MembershipServiceClient) GetMembershipStatus(email string) (*MembershipStatus, error) {
	u := fmt.Sprintf("%s/api/v1/memberships/status?email=%s", c.BaseURL, url.QueryEscape(email))

	req, err := http.NewRequest("GET", u, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		log.Printf("MembershipService /status returned %d: %s", resp.StatusCode, string(body))
		return nil, fmt.Errorf("membership lookup failed: %d", resp.StatusCode)
	}

	var out MembershipStatus
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}

	return &out, nil
}
