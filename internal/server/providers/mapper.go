package providers

import (
	"fmt"

	"github.com/dmitrijs2005/listkeeper/internal/common"
	"github.com/dmitrijs2005/listkeeper/internal/cryptox"
	"github.com/dmitrijs2005/listkeeper/internal/server/models"
	"github.com/google/uuid"
)

// CanonicalStatus folds the neutral provider flags into the canonical status.
// Fixed priority, highest wins: complained/bounced > unsubscribed >
// pending (unverified) > active.
func CanonicalStatus(raw RawSubscriber) models.SubscriberStatus {
	switch {
	case raw.Complained:
		return models.SubscriberComplained
	case raw.Bounced:
		return models.SubscriberBounced
	case raw.Unsubscribed:
		return models.SubscriberUnsubscribed
	case raw.Unverified:
		return models.SubscriberPending
	default:
		return models.SubscriberActive
	}
}

// Mapper normalizes raw provider records into canonical subscriber rows.
// The email address is vault-sealed on the way in; only the masked form is
// kept in the clear.
type Mapper struct {
	vault *cryptox.Vault
}

func NewMapper(vault *cryptox.Vault) *Mapper {
	return &Mapper{vault: vault}
}

// Map builds the canonical subscriber row for one raw record.
func (m *Mapper) Map(connectionID string, raw RawSubscriber) (*models.Subscriber, error) {
	emailEncrypted, err := m.vault.Encrypt(raw.Email)
	if err != nil {
		return nil, fmt.Errorf("seal email: %w", err)
	}

	return &models.Subscriber{
		ID:             uuid.NewString(),
		ConnectionID:   connectionID,
		ExternalID:     raw.ExternalID,
		EmailEncrypted: emailEncrypted,
		EmailMasked:    common.MaskEmail(raw.Email),
		Status:         CanonicalStatus(raw),
		FirstName:      raw.FirstName,
		LastName:       raw.LastName,
		SubscribedAt:   raw.SubscribedAt,
		UnsubscribedAt: raw.UnsubscribedAt,
		Metadata:       raw.Metadata,
	}, nil
}
