package repository

import (
	"context"
	"errors"

	"vibefi/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetUserByWallet returns the user for a wallet address, or nil if unknown
func (r *Repository) GetUserByWallet(ctx context.Context, walletAddress string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("wallet_address = ?", walletAddress).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByID retrieves a user by primary key
func (r *Repository) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateUser inserts a new user
func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// NicknameExists reports whether a nickname is taken
func (r *Repository) NicknameExists(ctx context.Context, nickname string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.User{}).Where("nickname = ?", nickname).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// SaveLoginChallenge stores the wallet's login nonce, replacing any earlier one
func (r *Repository) SaveLoginChallenge(ctx context.Context, challenge *models.LoginChallenge) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "address"}},
			DoUpdates: clause.AssignmentColumns([]string{"chain", "nonce", "expires_at"}),
		}).
		Create(challenge).Error
}

// GetLoginChallenge returns the wallet's outstanding nonce, or nil if none
func (r *Repository) GetLoginChallenge(ctx context.Context, address string) (*models.LoginChallenge, error) {
	var challenge models.LoginChallenge
	err := r.db.WithContext(ctx).Where("address = ?", address).First(&challenge).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &challenge, nil
}

// ConsumeLoginChallenge deletes the nonce and reports whether this call was
// the one that removed it
func (r *Repository) ConsumeLoginChallenge(ctx context.Context, address string, nonce string) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("address = ? AND nonce = ?", address, nonce).
		Delete(&models.LoginChallenge{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
