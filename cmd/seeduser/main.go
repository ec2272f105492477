// Command seeduser bootstraps the platform operator: an operator node and an
// admin user on it. Re-running it resets the admin password.
//
//	SEED_ADMIN_EMAIL=ops@example.org SEED_ADMIN_PASSWORD=... go run ./cmd/seeduser
package main

import (
	"context"
	"errors"
	"os"
	"strings"

	"fairtrace/internal/config"
	"fairtrace/internal/infra"
	"fairtrace/internal/model"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const operatorNode = "Platform operator"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	email := strings.ToLower(strings.TrimSpace(os.Getenv("SEED_ADMIN_EMAIL")))
	password := os.Getenv("SEED_ADMIN_PASSWORD")
	if email == "" || len(password) < 8 {
		log.Fatal().Msg("SEED_ADMIN_EMAIL and SEED_ADMIN_PASSWORD (8+ chars) are required")
	}

	db, err := infra.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), 12)
	if err != nil {
		log.Fatal().Err(err).Msg("bcrypt failed")
	}

	ctx := context.Background()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var node model.Node
		err := tx.Where("name = ? AND type = ?", operatorNode, model.NodeCompany).First(&node).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			node = model.Node{Type: model.NodeCompany, Name: operatorNode, ConsentStatus: model.ConsentGranted}
			err = tx.Create(&node).Error
		}
		if err != nil {
			return err
		}

		user := model.User{
			NodeID:       node.ID,
			Email:        email,
			Name:         "Admin",
			PasswordHash: string(hash),
			Role:         model.RoleAdmin,
			Active:       true,
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "email"}},
			DoUpdates: clause.AssignmentColumns([]string{"password_hash", "role", "active", "node_id"}),
		}).Create(&user).Error
	})
	if err != nil {
		log.Fatal().Err(err).Msg("seed failed")
	}
	log.Info().Str("email", email).Msg("admin user created or updated")
}
