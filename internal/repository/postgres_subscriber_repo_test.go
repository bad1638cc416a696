package repository

import (
	"testing"
	"time"

	"github.com/paymatch/api/internal/model"
)

// PostgresSubscriberRepoはSubscriberRepositoryインターフェースを満たすことを検証
func TestPostgresSubscriberRepo_ImplementsInterface(t *testing.T) {
	var _ SubscriberRepository = (*PostgresSubscriberRepo)(nil)
}

// NewPostgresSubscriberRepoが正しく初期化されることを検証
func TestNewPostgresSubscriberRepo_Initializes(t *testing.T) {
	repo := NewPostgresSubscriberRepo(nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
}

// Subscriberモデルのフィールドが正しく構築されることを検証
func TestPostgresSubscriberRepo_SubscriberModel_Fields(t *testing.T) {
	now := time.Now()
	sub := &model.Subscriber{
		ID:               "sub-id-1",
		Email:            "a@b.ch",
		FirstName:        "Anna",
		LastName:         "Brunner",
		EmailType:        model.EmailTypeNewsletter,
		IsActive:         true,
		UnsubscribeToken: "token-1",
		SubscribedAt:     now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if sub.Email != "a@b.ch" {
		t.Errorf("sub.Email = %q, want %q", sub.Email, "a@b.ch")
	}
	if sub.EmailType != model.EmailTypeNewsletter {
		t.Errorf("sub.EmailType = %q, want %q", sub.EmailType, model.EmailTypeNewsletter)
	}
	if !sub.IsActive {
		t.Error("expected IsActive = true")
	}
	if sub.UnsubscribedAt != nil {
		t.Error("expected UnsubscribedAt = nil for active subscriber")
	}
}

// PostgresConsentRepoはConsentRepositoryインターフェースを満たすことを検証
func TestPostgresConsentRepo_ImplementsInterface(t *testing.T) {
	var _ ConsentRepository = (*PostgresConsentRepo)(nil)
}

// PostgresBillingRepoはBillingRepositoryインターフェースを満たすことを検証
func TestPostgresBillingRepo_ImplementsInterface(t *testing.T) {
	var _ BillingRepository = (*PostgresBillingRepo)(nil)
}
