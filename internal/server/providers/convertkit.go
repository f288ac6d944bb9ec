package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dmitrijs2005/listkeeper/internal/common"
)

// ConvertKitConnector speaks the ConvertKit (Kit) API. Forms play the role
// of lists. The secret is sent as a bearer token, which covers both OAuth
// access tokens and v4-style API keys.
//
// Field-to-flag mapping on subscriber state:
//   - "cancelled"  -> Unsubscribed
//   - "bounced"    -> Bounced
//   - "complained" -> Complained
//   - "inactive"   -> Unverified
type ConvertKitConnector struct {
	baseURL string
	client  *http.Client
}

func NewConvertKitConnector() *ConvertKitConnector {
	return &ConvertKitConnector{
		baseURL: "https://api.convertkit.com/v4",
		client:  newHTTPClient(),
	}
}

func (c *ConvertKitConnector) ValidateCredential(ctx context.Context, secret, listID string) (bool, error) {
	err := getJSON(ctx, c.client, c.baseURL+"/account", bearerAuth(secret), nil)
	if err != nil {
		if errors.Is(err, common.ErrCredentialInvalid) {
			return false, nil
		}
		return false, err
	}

	if listID == "" {
		return true, nil
	}

	err = getJSON(ctx, c.client, c.baseURL+"/forms/"+listID, bearerAuth(secret), nil)
	if err != nil {
		if errors.Is(err, common.ErrCredentialInvalid) || errors.Is(err, common.ErrRemoteNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

type convertKitForm struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	TotalSubs int    `json:"total_subscribers"`
}

func (c *ConvertKitConnector) FetchLists(ctx context.Context, secret string) ([]List, error) {
	var result []List
	page := 1

	for {
		var body struct {
			Forms      []convertKitForm `json:"forms"`
			Page       int              `json:"page"`
			TotalPages int              `json:"total_pages"`
		}
		url := fmt.Sprintf("%s/forms?page=%d", c.baseURL, page)
		if err := getJSON(ctx, c.client, url, bearerAuth(secret), &body); err != nil {
			return nil, err
		}

		for _, f := range body.Forms {
			result = append(result, List{
				ID:              fmt.Sprintf("%d", f.ID),
				Name:            f.Name,
				SubscriberCount: f.TotalSubs,
			})
		}

		if body.TotalPages == 0 || page >= body.TotalPages {
			return result, nil
		}
		page++
	}
}

type convertKitSubscriber struct {
	ID           int64      `json:"id"`
	EmailAddress string     `json:"email_address"`
	FirstName    string     `json:"first_name"`
	State        string     `json:"state"`
	CreatedAt    *time.Time `json:"created_at"`
	CancelledAt  *time.Time `json:"cancelled_at"`
	Fields       struct {
		LastName string `json:"last_name"`
	} `json:"fields"`
}

func (c *ConvertKitConnector) FetchSubscribers(ctx context.Context, secret, listID string) ([]RawSubscriber, error) {
	var result []RawSubscriber
	page := 1

	for {
		var body struct {
			Subscribers []convertKitSubscriber `json:"subscribers"`
			Page        int                    `json:"page"`
			TotalPages  int                    `json:"total_pages"`
		}
		url := fmt.Sprintf("%s/forms/%s/subscribers?page=%d", c.baseURL, listID, page)
		if err := getJSON(ctx, c.client, url, bearerAuth(secret), &body); err != nil {
			return nil, fmt.Errorf("convertkit subscribers page %d: %w", page, err)
		}

		for _, s := range body.Subscribers {
			result = append(result, RawSubscriber{
				ExternalID:     fmt.Sprintf("%d", s.ID),
				Email:          s.EmailAddress,
				FirstName:      s.FirstName,
				LastName:       s.Fields.LastName,
				Unsubscribed:   s.State == "cancelled",
				Bounced:        s.State == "bounced",
				Complained:     s.State == "complained",
				Unverified:     s.State == "inactive",
				SubscribedAt:   s.CreatedAt,
				UnsubscribedAt: s.CancelledAt,
				Metadata:       map[string]any{"provider_state": s.State},
			})
		}

		if body.TotalPages == 0 || page >= body.TotalPages {
			return result, nil
		}
		page++
	}
}

func (c *ConvertKitConnector) GetSubscriberCount(ctx context.Context, secret, listID string) (int, error) {
	var body struct {
		Form convertKitForm `json:"form"`
	}
	err := getJSON(ctx, c.client, c.baseURL+"/forms/"+listID, bearerAuth(secret), &body)
	if err != nil {
		return 0, err
	}
	return body.Form.TotalSubs, nil
}
