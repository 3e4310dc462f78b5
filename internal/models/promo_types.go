package models

import "time"

// PromoCode defines the model for the 'promo_codes' table.
// MaxUses nil means unlimited.
type PromoCode struct {
	ID             int64     `json:"id" db:"id"`
	Code           string    `json:"code" db:"code"`
	CreditsGranted int       `json:"creditsGranted" db:"credits_granted"`
	IsActive       bool      `json:"isActive" db:"is_active"`
	MaxUses        *int      `json:"maxUses,omitempty" db:"max_uses"`
	UsesCount      int       `json:"usesCount" db:"uses_count"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time `json:"updatedAt" db:"updated_at"`
}

// PromoRedemption records that an account redeemed a code. Unique per (account, promo).
type PromoRedemption struct {
	ID        int64     `json:"id" db:"id"`
	AccountID int64     `json:"accountId" db:"account_id"`
	PromoID   int64     `json:"promoId" db:"promo_id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
