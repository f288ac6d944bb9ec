package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/listkeeper/internal/common"
)

// MailchimpConnector speaks the Mailchimp Marketing API v3.
//
// Credential: an API key of the form "<key>-<dc>"; the datacenter suffix
// selects the API host. Authentication is HTTP basic with the key as password.
//
// Field-to-flag mapping:
//   - status "unsubscribed"            -> Unsubscribed
//   - status "cleaned"                 -> Bounced (hard-bounced/cleaned address)
//   - status "pending"                 -> Unverified (double opt-in not confirmed)
//   - unsubscribe_reason containing "abuse" -> Complained
type MailchimpConnector struct {
	// baseURL overrides the datacenter-derived host (tests, proxies).
	baseURL string
	client  *http.Client
}

func NewMailchimpConnector() *MailchimpConnector {
	return &MailchimpConnector{client: newHTTPClient()}
}

const mailchimpPageSize = 500

func (c *MailchimpConnector) endpoint(secret string) string {
	if c.baseURL != "" {
		return c.baseURL
	}
	dc := "us1"
	if i := strings.LastIndex(secret, "-"); i >= 0 && i < len(secret)-1 {
		dc = secret[i+1:]
	}
	return fmt.Sprintf("https://%s.api.mailchimp.com/3.0", dc)
}

func mailchimpAuth(secret string) func(*http.Request) {
	return func(req *http.Request) {
		req.SetBasicAuth("anystring", secret)
	}
}

func (c *MailchimpConnector) ValidateCredential(ctx context.Context, secret, listID string) (bool, error) {
	err := getJSON(ctx, c.client, c.endpoint(secret)+"/ping", mailchimpAuth(secret), nil)
	if err != nil {
		if errors.Is(err, common.ErrCredentialInvalid) {
			return false, nil
		}
		return false, err
	}

	if listID == "" {
		return true, nil
	}

	err = getJSON(ctx, c.client, c.endpoint(secret)+"/lists/"+listID, mailchimpAuth(secret), nil)
	if err != nil {
		if errors.Is(err, common.ErrCredentialInvalid) || errors.Is(err, common.ErrRemoteNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

type mailchimpList struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Stats struct {
		MemberCount int `json:"member_count"`
	} `json:"stats"`
}

func (c *MailchimpConnector) FetchLists(ctx context.Context, secret string) ([]List, error) {
	var result []List
	offset := 0

	for {
		var page struct {
			Lists      []mailchimpList `json:"lists"`
			TotalItems int             `json:"total_items"`
		}
		url := fmt.Sprintf("%s/lists?count=%d&offset=%d", c.endpoint(secret), mailchimpPageSize, offset)
		if err := getJSON(ctx, c.client, url, mailchimpAuth(secret), &page); err != nil {
			return nil, err
		}

		for _, l := range page.Lists {
			result = append(result, List{ID: l.ID, Name: l.Name, SubscriberCount: l.Stats.MemberCount})
		}

		offset += len(page.Lists)
		if len(page.Lists) == 0 || offset >= page.TotalItems {
			return result, nil
		}
	}
}

type mailchimpMember struct {
	ID                string `json:"id"`
	EmailAddress      string `json:"email_address"`
	Status            string `json:"status"`
	UnsubscribeReason string `json:"unsubscribe_reason"`
	MergeFields       struct {
		FName string `json:"FNAME"`
		LName string `json:"LNAME"`
	} `json:"merge_fields"`
	TimestampOpt *time.Time `json:"timestamp_opt"`
	LastChanged  *time.Time `json:"last_changed"`
}

func (c *MailchimpConnector) FetchSubscribers(ctx context.Context, secret, listID string) ([]RawSubscriber, error) {
	var result []RawSubscriber
	offset := 0

	for {
		var page struct {
			Members    []mailchimpMember `json:"members"`
			TotalItems int               `json:"total_items"`
		}
		url := fmt.Sprintf("%s/lists/%s/members?count=%d&offset=%d", c.endpoint(secret), listID, mailchimpPageSize, offset)
		if err := getJSON(ctx, c.client, url, mailchimpAuth(secret), &page); err != nil {
			return nil, fmt.Errorf("mailchimp members page at offset %d: %w", offset, err)
		}

		for _, m := range page.Members {
			raw := RawSubscriber{
				ExternalID:   m.ID,
				Email:        m.EmailAddress,
				FirstName:    m.MergeFields.FName,
				LastName:     m.MergeFields.LName,
				Unsubscribed: m.Status == "unsubscribed",
				Bounced:      m.Status == "cleaned",
				Complained:   strings.Contains(strings.ToLower(m.UnsubscribeReason), "abuse"),
				Unverified:   m.Status == "pending",
				SubscribedAt: m.TimestampOpt,
				Metadata:     map[string]any{"provider_status": m.Status},
			}
			if raw.Unsubscribed || raw.Complained {
				raw.UnsubscribedAt = m.LastChanged
			}
			result = append(result, raw)
		}

		offset += len(page.Members)
		if len(page.Members) == 0 || offset >= page.TotalItems {
			return result, nil
		}
	}
}

func (c *MailchimpConnector) GetSubscriberCount(ctx context.Context, secret, listID string) (int, error) {
	var list mailchimpList
	err := getJSON(ctx, c.client, c.endpoint(secret)+"/lists/"+listID, mailchimpAuth(secret), &list)
	if err != nil {
		return 0, err
	}
	return list.Stats.MemberCount, nil
}
