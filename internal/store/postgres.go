package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ── Users ──

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, password_hash, role, color, avatar_key, is_email_verified, verification_token)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, user.ID, user.DisplayName, user.Email, user.PasswordHash, user.Role, user.Color, user.AvatarKey, user.IsEmailVerified, user.VerificationToken)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, userColumns+` WHERE id=$1 AND deactivated_at IS NULL`, userID))
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, userColumns+` WHERE LOWER(email)=LOWER($1) AND deactivated_at IS NULL`, email))
}

const userColumns = `
	SELECT id, display_name, email, password_hash, role, color, avatar_key, is_email_verified, created_at, updated_at
	FROM users`

func (s *PostgresStore) scanUser(row *sql.Row) (User, error) {
	var user User
	err := row.Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.Role,
		&user.Color, &user.AvatarKey, &user.IsEmailVerified, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET verification_token=$2, verification_expires_at=$3, updated_at=NOW() WHERE id=$1
	`, userID, token, expiresAt)
	if err != nil {
		return fmt.Errorf("set verification token: %w", err)
	}
	return nil
}

func (s *PostgresStore) VerifyUserEmail(ctx context.Context, token string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET is_email_verified=TRUE, verification_token='', verification_expires_at=NULL, updated_at=NOW()
		WHERE verification_token=$1 AND verification_expires_at > NOW()
	`, token)
	if err != nil {
		return fmt.Errorf("verify email: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("verify email rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateUserAvatar(ctx context.Context, userID, avatarKey string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET avatar_key=$2, updated_at=NOW() WHERE id=$1`, userID, avatarKey)
	if err != nil {
		return fmt.Errorf("update avatar: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_resets (token, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token) DO NOTHING
	`, token, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("create password reset: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM password_resets
		WHERE token=$1 AND used_at IS NULL AND expires_at > NOW()
	`, token).Scan(&userID)
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *PostgresStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE password_resets SET used_at=NOW() WHERE token=$1`, token)
	if err != nil {
		return fmt.Errorf("mark password reset used: %w", err)
	}
	return nil
}

// ── Refresh sessions and token revocation (Postgres fallback when Redis is not configured) ──

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.display_name, u.email, u.password_hash, u.role, u.color, u.avatar_key, u.is_email_verified, u.created_at, u.updated_at
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&user.ID, &user.DisplayName, &user.Email,
		&user.PasswordHash, &user.Role, &user.Color, &user.AvatarKey, &user.IsEmailVerified, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	if user.Role == "" {
		user.Role = "viewer"
	}
	return user, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return exists, nil
}

// ── Bonds ──

const bondColumns = `id, slug, name, issuer, coupon_pct, maturity_date, rating, summary, body, status, updated_by, created_at, updated_at`

func (s *PostgresStore) ListBonds(ctx context.Context) ([]Bond, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+bondColumns+` FROM bonds ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list bonds: %w", err)
	}
	defer rows.Close()

	bonds := make([]Bond, 0)
	for rows.Next() {
		var b Bond
		if err := rows.Scan(&b.ID, &b.Slug, &b.Name, &b.Issuer, &b.CouponPct, &b.MaturityDate, &b.Rating,
			&b.Summary, &b.Body, &b.Status, &b.UpdatedBy, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan bond: %w", err)
		}
		bonds = append(bonds, b)
	}
	return bonds, rows.Err()
}

func (s *PostgresStore) GetBond(ctx context.Context, id string) (Bond, error) {
	var b Bond
	err := s.db.QueryRowContext(ctx, `SELECT `+bondColumns+` FROM bonds WHERE id=$1`, id).
		Scan(&b.ID, &b.Slug, &b.Name, &b.Issuer, &b.CouponPct, &b.MaturityDate, &b.Rating,
			&b.Summary, &b.Body, &b.Status, &b.UpdatedBy, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return Bond{}, err
	}
	return b, nil
}

func (s *PostgresStore) InsertBond(ctx context.Context, b Bond) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bonds (id, slug, name, issuer, coupon_pct, maturity_date, rating, summary, body, status, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, b.ID, b.Slug, b.Name, b.Issuer, b.CouponPct, b.MaturityDate, b.Rating, b.Summary, b.Body, b.Status, b.UpdatedBy)
	if err != nil {
		return fmt.Errorf("insert bond: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateBond(ctx context.Context, b Bond) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE bonds SET slug=$2, name=$3, issuer=$4, coupon_pct=$5, maturity_date=$6, rating=$7,
			summary=$8, body=$9, status=$10, updated_by=$11, updated_at=NOW()
		WHERE id=$1
	`, b.ID, b.Slug, b.Name, b.Issuer, b.CouponPct, b.MaturityDate, b.Rating, b.Summary, b.Body, b.Status, b.UpdatedBy)
	if err != nil {
		return fmt.Errorf("update bond: %w", err)
	}
	return noRowsIfZero(result)
}

func (s *PostgresStore) DeleteBond(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM bonds WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete bond: %w", err)
	}
	return noRowsIfZero(result)
}

// ── Crypto assets ──

const cryptoColumns = `id, slug, name, symbol, summary, body, logo_key, status, updated_by, created_at, updated_at`

func (s *PostgresStore) ListCryptoAssets(ctx context.Context) ([]CryptoAsset, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+cryptoColumns+` FROM crypto_assets ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list crypto assets: %w", err)
	}
	defer rows.Close()

	assets := make([]CryptoAsset, 0)
	for rows.Next() {
		var c CryptoAsset
		if err := rows.Scan(&c.ID, &c.Slug, &c.Name, &c.Symbol, &c.Summary, &c.Body, &c.LogoKey,
			&c.Status, &c.UpdatedBy, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan crypto asset: %w", err)
		}
		assets = append(assets, c)
	}
	return assets, rows.Err()
}

func (s *PostgresStore) GetCryptoAsset(ctx context.Context, id string) (CryptoAsset, error) {
	var c CryptoAsset
	err := s.db.QueryRowContext(ctx, `SELECT `+cryptoColumns+` FROM crypto_assets WHERE id=$1`, id).
		Scan(&c.ID, &c.Slug, &c.Name, &c.Symbol, &c.Summary, &c.Body, &c.LogoKey,
			&c.Status, &c.UpdatedBy, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return CryptoAsset{}, err
	}
	return c, nil
}

func (s *PostgresStore) InsertCryptoAsset(ctx context.Context, c CryptoAsset) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO crypto_assets (id, slug, name, symbol, summary, body, logo_key, status, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, c.ID, c.Slug, c.Name, c.Symbol, c.Summary, c.Body, c.LogoKey, c.Status, c.UpdatedBy)
	if err != nil {
		return fmt.Errorf("insert crypto asset: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateCryptoAsset(ctx context.Context, c CryptoAsset) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE crypto_assets SET slug=$2, name=$3, symbol=$4, summary=$5, body=$6, logo_key=$7,
			status=$8, updated_by=$9, updated_at=NOW()
		WHERE id=$1
	`, c.ID, c.Slug, c.Name, c.Symbol, c.Summary, c.Body, c.LogoKey, c.Status, c.UpdatedBy)
	if err != nil {
		return fmt.Errorf("update crypto asset: %w", err)
	}
	return noRowsIfZero(result)
}

func (s *PostgresStore) DeleteCryptoAsset(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM crypto_assets WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete crypto asset: %w", err)
	}
	return noRowsIfZero(result)
}

// ── Stocks ──

const stockColumns = `id, slug, name, ticker, exchange, sector, summary, body, hero_image_key, status, updated_by, created_at, updated_at`

func (s *PostgresStore) ListStocks(ctx context.Context) ([]Stock, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+stockColumns+` FROM stocks ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list stocks: %w", err)
	}
	defer rows.Close()

	stocks := make([]Stock, 0)
	for rows.Next() {
		var st Stock
		if err := rows.Scan(&st.ID, &st.Slug, &st.Name, &st.Ticker, &st.Exchange, &st.Sector,
			&st.Summary, &st.Body, &st.HeroImageKey, &st.Status, &st.UpdatedBy, &st.CreatedAt, &st.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan stock: %w", err)
		}
		stocks = append(stocks, st)
	}
	return stocks, rows.Err()
}

func (s *PostgresStore) GetStock(ctx context.Context, id string) (Stock, error) {
	var st Stock
	err := s.db.QueryRowContext(ctx, `SELECT `+stockColumns+` FROM stocks WHERE id=$1`, id).
		Scan(&st.ID, &st.Slug, &st.Name, &st.Ticker, &st.Exchange, &st.Sector,
			&st.Summary, &st.Body, &st.HeroImageKey, &st.Status, &st.UpdatedBy, &st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		return Stock{}, err
	}
	return st, nil
}

func (s *PostgresStore) InsertStock(ctx context.Context, st Stock) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stocks (id, slug, name, ticker, exchange, sector, summary, body, hero_image_key, status, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, st.ID, st.Slug, st.Name, st.Ticker, st.Exchange, st.Sector, st.Summary, st.Body, st.HeroImageKey, st.Status, st.UpdatedBy)
	if err != nil {
		return fmt.Errorf("insert stock: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateStock(ctx context.Context, st Stock) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE stocks SET slug=$2, name=$3, ticker=$4, exchange=$5, sector=$6, summary=$7, body=$8,
			hero_image_key=$9, status=$10, updated_by=$11, updated_at=NOW()
		WHERE id=$1
	`, st.ID, st.Slug, st.Name, st.Ticker, st.Exchange, st.Sector, st.Summary, st.Body, st.HeroImageKey, st.Status, st.UpdatedBy)
	if err != nil {
		return fmt.Errorf("update stock: %w", err)
	}
	return noRowsIfZero(result)
}

func (s *PostgresStore) DeleteStock(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM stocks WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete stock: %w", err)
	}
	return noRowsIfZero(result)
}

// ── Newsletters ──

const newsletterColumns = `id, slug, subject, preview_text, body_html, scheduled_at, sent_at, status, updated_by, created_at, updated_at`

func (s *PostgresStore) ListNewsletters(ctx context.Context) ([]Newsletter, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+newsletterColumns+` FROM newsletters ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list newsletters: %w", err)
	}
	defer rows.Close()

	newsletters := make([]Newsletter, 0)
	for rows.Next() {
		var n Newsletter
		if err := rows.Scan(&n.ID, &n.Slug, &n.Subject, &n.PreviewText, &n.BodyHTML, &n.ScheduledAt,
			&n.SentAt, &n.Status, &n.UpdatedBy, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan newsletter: %w", err)
		}
		newsletters = append(newsletters, n)
	}
	return newsletters, rows.Err()
}

func (s *PostgresStore) GetNewsletter(ctx context.Context, id string) (Newsletter, error) {
	var n Newsletter
	err := s.db.QueryRowContext(ctx, `SELECT `+newsletterColumns+` FROM newsletters WHERE id=$1`, id).
		Scan(&n.ID, &n.Slug, &n.Subject, &n.PreviewText, &n.BodyHTML, &n.ScheduledAt,
			&n.SentAt, &n.Status, &n.UpdatedBy, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return Newsletter{}, err
	}
	return n, nil
}

func (s *PostgresStore) InsertNewsletter(ctx context.Context, n Newsletter) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO newsletters (id, slug, subject, preview_text, body_html, scheduled_at, status, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, n.ID, n.Slug, n.Subject, n.PreviewText, n.BodyHTML, n.ScheduledAt, n.Status, n.UpdatedBy)
	if err != nil {
		return fmt.Errorf("insert newsletter: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateNewsletter(ctx context.Context, n Newsletter) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE newsletters SET slug=$2, subject=$3, preview_text=$4, body_html=$5, scheduled_at=$6,
			sent_at=$7, status=$8, updated_by=$9, updated_at=NOW()
		WHERE id=$1
	`, n.ID, n.Slug, n.Subject, n.PreviewText, n.BodyHTML, n.ScheduledAt, n.SentAt, n.Status, n.UpdatedBy)
	if err != nil {
		return fmt.Errorf("update newsletter: %w", err)
	}
	return noRowsIfZero(result)
}

func (s *PostgresStore) DeleteNewsletter(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM newsletters WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete newsletter: %w", err)
	}
	return noRowsIfZero(result)
}

// ── Spotlights ──

const spotlightColumns = `id, title, image_key, link_url, placement, starts_at, ends_at, sort_order, active, updated_by, created_at, updated_at`

func (s *PostgresStore) ListSpotlights(ctx context.Context) ([]Spotlight, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+spotlightColumns+` FROM spotlights ORDER BY placement, sort_order`)
	if err != nil {
		return nil, fmt.Errorf("list spotlights: %w", err)
	}
	defer rows.Close()

	spotlights := make([]Spotlight, 0)
	for rows.Next() {
		var sp Spotlight
		if err := rows.Scan(&sp.ID, &sp.Title, &sp.ImageKey, &sp.LinkURL, &sp.Placement, &sp.StartsAt,
			&sp.EndsAt, &sp.SortOrder, &sp.Active, &sp.UpdatedBy, &sp.CreatedAt, &sp.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan spotlight: %w", err)
		}
		spotlights = append(spotlights, sp)
	}
	return spotlights, rows.Err()
}

func (s *PostgresStore) GetSpotlight(ctx context.Context, id string) (Spotlight, error) {
	var sp Spotlight
	err := s.db.QueryRowContext(ctx, `SELECT `+spotlightColumns+` FROM spotlights WHERE id=$1`, id).
		Scan(&sp.ID, &sp.Title, &sp.ImageKey, &sp.LinkURL, &sp.Placement, &sp.StartsAt,
			&sp.EndsAt, &sp.SortOrder, &sp.Active, &sp.UpdatedBy, &sp.CreatedAt, &sp.UpdatedAt)
	if err != nil {
		return Spotlight{}, err
	}
	return sp, nil
}

func (s *PostgresStore) InsertSpotlight(ctx context.Context, sp Spotlight) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO spotlights (id, title, image_key, link_url, placement, starts_at, ends_at, sort_order, active, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, sp.ID, sp.Title, sp.ImageKey, sp.LinkURL, sp.Placement, sp.StartsAt, sp.EndsAt, sp.SortOrder, sp.Active, sp.UpdatedBy)
	if err != nil {
		return fmt.Errorf("insert spotlight: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateSpotlight(ctx context.Context, sp Spotlight) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE spotlights SET title=$2, image_key=$3, link_url=$4, placement=$5, starts_at=$6,
			ends_at=$7, sort_order=$8, active=$9, updated_by=$10, updated_at=NOW()
		WHERE id=$1
	`, sp.ID, sp.Title, sp.ImageKey, sp.LinkURL, sp.Placement, sp.StartsAt, sp.EndsAt, sp.SortOrder, sp.Active, sp.UpdatedBy)
	if err != nil {
		return fmt.Errorf("update spotlight: %w", err)
	}
	return noRowsIfZero(result)
}

func (s *PostgresStore) DeleteSpotlight(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM spotlights WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete spotlight: %w", err)
	}
	return noRowsIfZero(result)
}

// ── Landing pages ──

const landingPageColumns = `id, slug, title, meta_description, body_html, preview_key, status, published_at, updated_by, created_at, updated_at`

func (s *PostgresStore) ListLandingPages(ctx context.Context) ([]LandingPage, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+landingPageColumns+` FROM landing_pages ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list landing pages: %w", err)
	}
	defer rows.Close()

	pages := make([]LandingPage, 0)
	for rows.Next() {
		var lp LandingPage
		if err := rows.Scan(&lp.ID, &lp.Slug, &lp.Title, &lp.MetaDescription, &lp.BodyHTML, &lp.PreviewKey,
			&lp.Status, &lp.PublishedAt, &lp.UpdatedBy, &lp.CreatedAt, &lp.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan landing page: %w", err)
		}
		pages = append(pages, lp)
	}
	return pages, rows.Err()
}

func (s *PostgresStore) GetLandingPage(ctx context.Context, id string) (LandingPage, error) {
	var lp LandingPage
	err := s.db.QueryRowContext(ctx, `SELECT `+landingPageColumns+` FROM landing_pages WHERE id=$1`, id).
		Scan(&lp.ID, &lp.Slug, &lp.Title, &lp.MetaDescription, &lp.BodyHTML, &lp.PreviewKey,
			&lp.Status, &lp.PublishedAt, &lp.UpdatedBy, &lp.CreatedAt, &lp.UpdatedAt)
	if err != nil {
		return LandingPage{}, err
	}
	return lp, nil
}

func (s *PostgresStore) InsertLandingPage(ctx context.Context, lp LandingPage) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO landing_pages (id, slug, title, meta_description, body_html, status, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, lp.ID, lp.Slug, lp.Title, lp.MetaDescription, lp.BodyHTML, lp.Status, lp.UpdatedBy)
	if err != nil {
		return fmt.Errorf("insert landing page: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateLandingPage(ctx context.Context, lp LandingPage) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE landing_pages SET slug=$2, title=$3, meta_description=$4, body_html=$5,
			status=$6, published_at=$7, updated_by=$8, updated_at=NOW()
		WHERE id=$1
	`, lp.ID, lp.Slug, lp.Title, lp.MetaDescription, lp.BodyHTML, lp.Status, lp.PublishedAt, lp.UpdatedBy)
	if err != nil {
		return fmt.Errorf("update landing page: %w", err)
	}
	return noRowsIfZero(result)
}

func (s *PostgresStore) SetLandingPagePreviewKey(ctx context.Context, id, previewKey string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE landing_pages SET preview_key=$2, updated_at=NOW() WHERE id=$1`, id, previewKey)
	if err != nil {
		return fmt.Errorf("set landing page preview: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteLandingPage(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM landing_pages WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete landing page: %w", err)
	}
	return noRowsIfZero(result)
}

// ── Pixel configs ──

const pixelColumns = `id, provider, pixel_id, pages, enabled, updated_by, created_at, updated_at`

func (s *PostgresStore) ListPixelConfigs(ctx context.Context) ([]PixelConfig, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+pixelColumns+` FROM pixel_configs ORDER BY provider`)
	if err != nil {
		return nil, fmt.Errorf("list pixel configs: %w", err)
	}
	defer rows.Close()

	configs := make([]PixelConfig, 0)
	for rows.Next() {
		p, err := scanPixelConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, p)
	}
	return configs, rows.Err()
}

func (s *PostgresStore) GetPixelConfig(ctx context.Context, id string) (PixelConfig, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+pixelColumns+` FROM pixel_configs WHERE id=$1`, id)
	if err != nil {
		return PixelConfig{}, fmt.Errorf("get pixel config: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return PixelConfig{}, err
		}
		return PixelConfig{}, sql.ErrNoRows
	}
	return scanPixelConfig(rows)
}

func scanPixelConfig(rows *sql.Rows) (PixelConfig, error) {
	var p PixelConfig
	var pagesJSON []byte
	if err := rows.Scan(&p.ID, &p.Provider, &p.PixelID, &pagesJSON, &p.Enabled, &p.UpdatedBy, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return PixelConfig{}, fmt.Errorf("scan pixel config: %w", err)
	}
	if len(pagesJSON) > 0 {
		if err := json.Unmarshal(pagesJSON, &p.Pages); err != nil {
			return PixelConfig{}, fmt.Errorf("decode pixel pages: %w", err)
		}
	}
	return p, nil
}

func (s *PostgresStore) InsertPixelConfig(ctx context.Context, p PixelConfig) error {
	pagesJSON, err := json.Marshal(p.Pages)
	if err != nil {
		return fmt.Errorf("encode pixel pages: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pixel_configs (id, provider, pixel_id, pages, enabled, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, p.ID, p.Provider, p.PixelID, pagesJSON, p.Enabled, p.UpdatedBy)
	if err != nil {
		return fmt.Errorf("insert pixel config: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdatePixelConfig(ctx context.Context, p PixelConfig) error {
	pagesJSON, err := json.Marshal(p.Pages)
	if err != nil {
		return fmt.Errorf("encode pixel pages: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE pixel_configs SET provider=$2, pixel_id=$3, pages=$4, enabled=$5, updated_by=$6, updated_at=NOW()
		WHERE id=$1
	`, p.ID, p.Provider, p.PixelID, pagesJSON, p.Enabled, p.UpdatedBy)
	if err != nil {
		return fmt.Errorf("update pixel config: %w", err)
	}
	return noRowsIfZero(result)
}

func (s *PostgresStore) DeletePixelConfig(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM pixel_configs WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete pixel config: %w", err)
	}
	return noRowsIfZero(result)
}

func noRowsIfZero(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
