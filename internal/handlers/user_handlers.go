package handlers

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/01moynul/snaplist/internal/database"
	"github.com/01moynul/snaplist/internal/models"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type RegisterInput struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

type LoginInput struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Register creates an account and grants the signup bonus in the same transaction.
// Route: POST /v1/register
func (h *Handlers) Register(c *gin.Context) {
	// 1. --- Bind & Validate JSON ---
	var input RegisterInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	email := strings.ToLower(strings.TrimSpace(input.Email))

	// 2. --- Hash the Password ---
	var password models.Password
	if err := password.Set(input.Password); err != nil {
		h.internalError(c, "Failed to hash password", err)
		return
	}

	ctx := c.Request.Context()
	tx, err := h.DB.BeginTx(ctx, nil)
	if err != nil {
		h.internalError(c, "Failed to start transaction", err)
		return
	}
	defer tx.Rollback()

	// 3. --- Insert Account ---
	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO accounts (email, password_hash, role, credits, created_at, updated_at) VALUES (?, ?, ?, 0, ?, ?)`,
		email, password.Hash, models.RoleUser, now, now,
	)
	if err != nil {
		if database.IsDuplicateKeyErr(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "An account with this email already exists"})
			return
		}
		h.internalError(c, "Failed to create account", err)
		return
	}
	id, err := res.LastInsertId()
	if err != nil {
		h.internalError(c, "Failed to create account", err)
		return
	}

	// 4. --- Signup Bonus ---
	if bonus := h.Config.Credits.SignupBonus; bonus > 0 {
		if err := h.Ledger.GrantTx(ctx, tx, id, bonus, "signup bonus"); err != nil {
			h.internalError(c, "Failed to grant signup credits", err)
			return
		}
	}

	if err := tx.Commit(); err != nil {
		h.internalError(c, "Failed to commit registration", err)
		return
	}

	h.Log.Info("account registered", zap.Int64("account_id", id))
	c.JSON(http.StatusCreated, gin.H{
		"message": "Account created successfully",
		"account": gin.H{
			"id":      id,
			"email":   email,
			"role":    models.RoleUser,
			"credits": h.Config.Credits.SignupBonus,
		},
	})
}

// Login checks credentials and returns a bearer token.
// Route: POST /v1/login
func (h *Handlers) Login(c *gin.Context) {
	var input LoginInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// 1. --- Find Account By Email ---
	var acc models.Account
	query := "SELECT id, password_hash, role FROM accounts WHERE email = ?"
	err := h.DB.QueryRowContext(c.Request.Context(), query, strings.ToLower(strings.TrimSpace(input.Email))).
		Scan(&acc.ID, &acc.PasswordHash, &acc.Role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}
		h.internalError(c, "Database error", err)
		return
	}

	// 2. --- Check Password ---
	password := models.Password{Hash: acc.PasswordHash}
	match, err := password.Matches(input.Password)
	if err != nil {
		h.internalError(c, "Failed to check password", err)
		return
	}
	if !match {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	// 3. --- Generate Token ---
	token, err := h.Tokens.GenerateToken(acc.ID)
	if err != nil {
		h.internalError(c, "Failed to generate token", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Login successful",
		"token":   token,
		"account": gin.H{
			"id":   acc.ID,
			"role": acc.Role,
		},
	})
}
