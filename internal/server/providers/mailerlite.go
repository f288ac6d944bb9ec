package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/dmitrijs2005/listkeeper/internal/common"
)

// MailerLiteConnector speaks the MailerLite "connect" API. Groups play the
// role of lists; the secret is an API token sent as a bearer header.
//
// Field-to-flag mapping on subscriber status:
//   - "unsubscribed" -> Unsubscribed
//   - "bounced"      -> Bounced
//   - "junk"         -> Complained (marked as spam)
//   - "unconfirmed"  -> Unverified
type MailerLiteConnector struct {
	baseURL string
	client  *http.Client
}

func NewMailerLiteConnector() *MailerLiteConnector {
	return &MailerLiteConnector{
		baseURL: "https://connect.mailerlite.com/api",
		client:  newHTTPClient(),
	}
}

const mailerLitePageSize = 100

type mailerLiteGroup struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ActiveCount int    `json:"active_count"`
	Total       int    `json:"total"`
}

func (c *MailerLiteConnector) ValidateCredential(ctx context.Context, secret, listID string) (bool, error) {
	err := getJSON(ctx, c.client, c.baseURL+"/groups?limit=1", bearerAuth(secret), nil)
	if err != nil {
		if errors.Is(err, common.ErrCredentialInvalid) {
			return false, nil
		}
		return false, err
	}

	if listID == "" {
		return true, nil
	}

	err = getJSON(ctx, c.client, c.baseURL+"/groups/"+listID, bearerAuth(secret), nil)
	if err != nil {
		if errors.Is(err, common.ErrCredentialInvalid) || errors.Is(err, common.ErrRemoteNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (c *MailerLiteConnector) FetchLists(ctx context.Context, secret string) ([]List, error) {
	var result []List
	next := fmt.Sprintf("%s/groups?limit=%d", c.baseURL, mailerLitePageSize)

	for next != "" {
		var body struct {
			Data  []mailerLiteGroup `json:"data"`
			Links struct {
				Next *string `json:"next"`
			} `json:"links"`
		}
		if err := getJSON(ctx, c.client, next, bearerAuth(secret), &body); err != nil {
			return nil, err
		}

		for _, g := range body.Data {
			result = append(result, List{ID: g.ID, Name: g.Name, SubscriberCount: g.ActiveCount})
		}

		next = ""
		if body.Links.Next != nil {
			next = *body.Links.Next
		}
	}
	return result, nil
}

type mailerLiteSubscriber struct {
	ID     string `json:"id"`
	Email  string `json:"email"`
	Status string `json:"status"`
	Fields struct {
		Name     string `json:"name"`
		LastName string `json:"last_name"`
	} `json:"fields"`
	SubscribedAt   *time.Time `json:"subscribed_at"`
	UnsubscribedAt *time.Time `json:"unsubscribed_at"`
}

func (c *MailerLiteConnector) FetchSubscribers(ctx context.Context, secret, listID string) ([]RawSubscriber, error) {
	var result []RawSubscriber
	next := fmt.Sprintf("%s/groups/%s/subscribers?limit=%d", c.baseURL, url.PathEscape(listID), mailerLitePageSize)

	for next != "" {
		var body struct {
			Data  []mailerLiteSubscriber `json:"data"`
			Links struct {
				Next *string `json:"next"`
			} `json:"links"`
		}
		if err := getJSON(ctx, c.client, next, bearerAuth(secret), &body); err != nil {
			return nil, fmt.Errorf("mailerlite subscribers page %q: %w", next, err)
		}

		for _, s := range body.Data {
			result = append(result, RawSubscriber{
				ExternalID:     s.ID,
				Email:          s.Email,
				FirstName:      s.Fields.Name,
				LastName:       s.Fields.LastName,
				Unsubscribed:   s.Status == "unsubscribed",
				Bounced:        s.Status == "bounced",
				Complained:     s.Status == "junk",
				Unverified:     s.Status == "unconfirmed",
				SubscribedAt:   s.SubscribedAt,
				UnsubscribedAt: s.UnsubscribedAt,
				Metadata:       map[string]any{"provider_status": s.Status},
			})
		}

		next = ""
		if body.Links.Next != nil {
			next = *body.Links.Next
		}
	}
	return result, nil
}

func (c *MailerLiteConnector) GetSubscriberCount(ctx context.Context, secret, listID string) (int, error) {
	var body struct {
		Data mailerLiteGroup `json:"data"`
	}
	err := getJSON(ctx, c.client, c.baseURL+"/groups/"+listID, bearerAuth(secret), &body)
	if err != nil {
		return 0, err
	}
	return body.Data.Total, nil
}
