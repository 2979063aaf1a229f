package identity

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"userbase/cmd/internal/pgutil"
)

// PostgresStore implements Store over PostgreSQL.
//
// Notes:
// - The pgx pool is owned by the caller; this store must NOT close it.
// - Schema/table identifiers are safely quoted to avoid SQL injection via identifiers.
// - Uniqueness lives in partial unique indexes; violations become ConflictError.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

var _ Store = (*PostgresStore)(nil)

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the Postgres schema used by the identity store (default "userbase").
// The schema name is validated to be a legal PostgreSQL identifier.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		if strings.TrimSpace(schema) == "" {
			return fmt.Errorf("identity: empty schema")
		}
		v, err := pgutil.Schema(schema)
		if err != nil {
			return fmt.Errorf("identity: %w", err)
		}
		s.schema = v
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: pgutil.DefaultSchema,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

const userColumns = `id, handle, display_name, avatar_url, status, onboarding_step,
	merged_into_user_id, created_at, updated_at`

const identityColumns = `id, user_id, type, COALESCE(handle, address, fid::text), is_primary,
	verified_at, metadata, created_at`

// GetUserByID returns a user by id.
func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	const op = "identity.GetUserByID"

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return User{}, pgInvalid(op, "missing user_id")
	}

	u, err := scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM `+s.t("users")+` WHERE id = $1`, userID))
	if err != nil {
		if pgutil.IsNoRows(err) {
			return User{}, NotFoundError{Op: op, Resource: "user"}
		}
		return User{}, dependency(op, err)
	}
	return u, nil
}

// HandleTaken reports whether any user currently holds handle.
func (s *PostgresStore) HandleTaken(ctx context.Context, handle string) (bool, error) {
	var taken bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+s.t("users")+` WHERE handle = $1)`, handle,
	).Scan(&taken)
	if err != nil {
		return false, dependency("identity.HandleTaken", err)
	}
	return taken, nil
}

// CreateAccount inserts a user and its single credential in one transaction.
func (s *PostgresStore) CreateAccount(ctx context.Context, in CreateAccountInput) (CreateAccountResult, error) {
	const op = "identity.CreateAccount"

	if err := validateCreateAccount(op, in); err != nil {
		return CreateAccountResult{}, err
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	userID, err := NewULID(now)
	if err != nil {
		return CreateAccountResult{}, err
	}
	credID, err := NewULID(now)
	if err != nil {
		return CreateAccountResult{}, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return CreateAccountResult{}, dependency(op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	handle := in.Handle
	_, err = tx.Exec(ctx,
		`INSERT INTO `+s.t("users")+` (
		     id, handle, display_name, avatar_url, status, onboarding_step, created_at, updated_at
		   ) VALUES ($1, $2, $3, $4, 'active', 0, $5, $5)`,
		userID, handle, pgTrimPtr(in.DisplayName), pgTrimPtr(in.AvatarURL), now,
	)
	if err != nil {
		if c, ok := pgutil.UniqueViolation(err); ok {
			return CreateAccountResult{}, ConflictError{Op: op, Field: pgutil.Field(c)}
		}
		return CreateAccountResult{}, dependency(op, err)
	}

	out := CreateAccountResult{
		User: User{
			ID:          userID,
			Handle:      &handle,
			DisplayName: pgTrimPtr(in.DisplayName),
			AvatarURL:   pgTrimPtr(in.AvatarURL),
			Status:      StatusActive,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
	}

	switch {
	case in.Identity != nil:
		col, arg, err := identityArg(in.Identity.Type, in.Identity.Identifier)
		if err != nil {
			return CreateAccountResult{}, err
		}
		md := metadataOrEmpty(in.Identity.Metadata)
		_, err = tx.Exec(ctx,
			`INSERT INTO `+s.t("identities")+` (
			     id, user_id, type, `+col+`, is_primary, verified_at, metadata, created_at
			   ) VALUES ($1, $2, $3, $4, true, $5, $6, $5)`,
			credID, userID, string(in.Identity.Type), arg, now, md,
		)
		if err != nil {
			return CreateAccountResult{}, s.credentialConflict(ctx, tx, op, err, func(ctx context.Context) (string, error) {
				ident, err := s.FindIdentity(ctx, in.Identity.Type, in.Identity.Identifier)
				return ident.UserID, err
			})
		}
		out.Identity = &Identity{
			ID:         credID,
			UserID:     userID,
			Type:       in.Identity.Type,
			Identifier: in.Identity.Identifier,
			IsPrimary:  true,
			VerifiedAt: now,
			Metadata:   md,
			CreatedAt:  now,
		}

	case in.AuthMethod != nil:
		var verifiedAt *time.Time
		if in.AuthMethod.Verified {
			verifiedAt = &now
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO `+s.t("auth_methods")+` (id, user_id, type, identifier, verified_at, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			credID, userID, string(in.AuthMethod.Type), in.AuthMethod.Identifier, verifiedAt, now,
		)
		if err != nil {
			return CreateAccountResult{}, s.credentialConflict(ctx, tx, op, err, func(ctx context.Context) (string, error) {
				am, err := s.FindAuthMethod(ctx, in.AuthMethod.Type, in.AuthMethod.Identifier)
				return am.UserID, err
			})
		}
		out.AuthMethod = &AuthMethod{
			ID:         credID,
			UserID:     userID,
			Type:       in.AuthMethod.Type,
			Identifier: in.AuthMethod.Identifier,
			VerifiedAt: verifiedAt,
			CreatedAt:  now,
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return CreateAccountResult{}, dependency(op, err)
	}
	return out, nil
}

// credentialConflict rolls back tx and converts a credential insert failure.
// A unique violation is reported with the current owner so callers can reuse it.
func (s *PostgresStore) credentialConflict(
	ctx context.Context,
	tx pgx.Tx,
	op string,
	err error,
	owner func(context.Context) (string, error),
) error {
	c, ok := pgutil.UniqueViolation(err)
	if !ok {
		return dependency(op, err)
	}
	_ = tx.Rollback(ctx)

	ce := ConflictError{Op: op, Field: pgutil.Field(c)}
	if uid, lookupErr := owner(ctx); lookupErr == nil {
		ce.OwnerUserID = uid
	}
	return ce
}

// BackfillProfile fills NULL profile columns from p without clobbering set values.
func (s *PostgresStore) BackfillProfile(ctx context.Context, userID string, p ProfilePatch, now time.Time) (User, error) {
	const op = "identity.BackfillProfile"

	if now.IsZero() {
		now = time.Now().UTC()
	}

	handle := pgTrimPtr(p.Handle)
	if handle != nil && !ValidHandle(*handle) {
		handle = nil
	}
	displayName := pgTrimPtr(p.DisplayName)
	avatarURL := pgTrimPtr(p.AvatarURL)

	if handle == nil && displayName == nil && avatarURL == nil {
		return s.GetUserByID(ctx, userID)
	}

	q := `UPDATE ` + s.t("users") + `
	         SET display_name = COALESCE(display_name, $2),
	             avatar_url   = COALESCE(avatar_url, $3),
	             handle       = COALESCE(handle, $4),
	             updated_at   = CASE
	                 WHEN (display_name IS NULL AND $2::text IS NOT NULL)
	                   OR (avatar_url IS NULL AND $3::text IS NOT NULL)
	                   OR (handle IS NULL AND $4::text IS NOT NULL)
	                 THEN $5 ELSE updated_at END
	       WHERE id = $1
	   RETURNING ` + userColumns

	u, err := scanUser(s.pool.QueryRow(ctx, q, userID, displayName, avatarURL, handle, now))
	if err != nil {
		if _, ok := pgutil.UniqueViolation(err); ok && handle != nil {
			// The suggested handle is held by someone else; keep the rest of the patch.
			u, err = scanUser(s.pool.QueryRow(ctx, q, userID, displayName, avatarURL, nil, now))
		}
	}
	if err != nil {
		if pgutil.IsNoRows(err) {
			return User{}, NotFoundError{Op: op, Resource: "user"}
		}
		return User{}, dependency(op, err)
	}
	return u, nil
}

// FindIdentity returns the identity bound to (t, identifier).
// identifier must already be normalized.
func (s *PostgresStore) FindIdentity(ctx context.Context, t IdentityType, identifier string) (Identity, error) {
	const op = "identity.FindIdentity"

	col, arg, err := identityArg(t, identifier)
	if err != nil {
		return Identity{}, err
	}

	ident, err := scanIdentity(s.pool.QueryRow(ctx,
		`SELECT `+identityColumns+` FROM `+s.t("identities")+`
		  WHERE type = $1 AND `+col+` = $2`,
		string(t), arg,
	))
	if err != nil {
		if pgutil.IsNoRows(err) {
			return Identity{}, NotFoundError{Op: op, Resource: "identity"}
		}
		return Identity{}, dependency(op, err)
	}
	return ident, nil
}

// ListIdentities returns every identity of a user, oldest first.
func (s *PostgresStore) ListIdentities(ctx context.Context, userID string) ([]Identity, error) {
	const op = "identity.ListIdentities"

	rows, err := s.pool.Query(ctx,
		`SELECT `+identityColumns+` FROM `+s.t("identities")+`
		  WHERE user_id = $1
		  ORDER BY created_at ASC, id ASC`,
		userID,
	)
	if err != nil {
		return nil, dependency(op, err)
	}
	defer rows.Close()

	out := make([]Identity, 0, 4)
	for rows.Next() {
		ident, err := scanIdentity(rows)
		if err != nil {
			return nil, dependency(op, err)
		}
		out = append(out, ident)
	}
	if err := rows.Err(); err != nil {
		return nil, dependency(op, err)
	}
	return out, nil
}

// UpsertIdentity binds (Type, Identifier) to UserID.
func (s *PostgresStore) UpsertIdentity(ctx context.Context, in UpsertIdentityInput) (UpsertIdentityResult, error) {
	const op = "identity.UpsertIdentity"

	if strings.TrimSpace(in.UserID) == "" {
		return UpsertIdentityResult{}, pgInvalid(op, "missing user_id")
	}
	col, arg, err := identityArg(in.Type, in.Identifier)
	if err != nil {
		return UpsertIdentityResult{}, err
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	existing, err := s.FindIdentity(ctx, in.Type, in.Identifier)
	switch {
	case err == nil:
		return ownedResult(op, existing, in.UserID)
	case !IsNotFound(err):
		return UpsertIdentityResult{}, err
	}

	id, err := NewULID(now)
	if err != nil {
		return UpsertIdentityResult{}, err
	}
	md := metadataOrEmpty(in.Metadata)
	idents := s.t("identities")

	var isPrimary bool
	primary := `NOT EXISTS (SELECT 1 FROM ` + idents + ` WHERE user_id = $2 AND type = $3)`
	for attempt := 0; ; attempt++ {
		err = s.pool.QueryRow(ctx,
			`INSERT INTO `+idents+` (id, user_id, type, `+col+`, is_primary, verified_at, metadata, created_at)
			 SELECT $1, $2, $3, $4, `+primary+`, $5, $6, $5
			 RETURNING is_primary`,
			id, in.UserID, string(in.Type), arg, now, md,
		).Scan(&isPrimary)
		c, ok := pgutil.UniqueViolation(err)
		if attempt > 0 || !ok || pgutil.Field(c) != "primary_identity" {
			break
		}
		// A concurrent link of another identity of this type took the
		// primary slot between our check and insert; retry once as secondary.
		primary = "false"
	}
	if err != nil {
		if pgutil.IsForeignKeyViolation(err) {
			return UpsertIdentityResult{}, NotFoundError{Op: op, Resource: "user"}
		}
		if c, ok := pgutil.UniqueViolation(err); ok {
			if pgutil.Field(c) == "identity" {
				// Lost a race with a concurrent insert of the same identity.
				winner, ferr := s.FindIdentity(ctx, in.Type, in.Identifier)
				if ferr != nil {
					return UpsertIdentityResult{}, ConflictError{Op: op, Field: "identity"}
				}
				return ownedResult(op, winner, in.UserID)
			}
			return UpsertIdentityResult{}, ConflictError{Op: op, Field: pgutil.Field(c)}
		}
		return UpsertIdentityResult{}, dependency(op, err)
	}

	return UpsertIdentityResult{
		Identity: Identity{
			ID:         id,
			UserID:     in.UserID,
			Type:       in.Type,
			Identifier: in.Identifier,
			IsPrimary:  isPrimary,
			VerifiedAt: now,
			Metadata:   md,
			CreatedAt:  now,
		},
		Created: true,
	}, nil
}

// FindAuthMethod returns the auth method for (t, identifier).
func (s *PostgresStore) FindAuthMethod(ctx context.Context, t AuthMethodType, identifier string) (AuthMethod, error) {
	const op = "identity.FindAuthMethod"

	var am AuthMethod
	var typ string
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, type, identifier, verified_at, created_at
		   FROM `+s.t("auth_methods")+`
		  WHERE type = $1 AND identifier = $2`,
		string(t), identifier,
	).Scan(&am.ID, &am.UserID, &typ, &am.Identifier, &am.VerifiedAt, &am.CreatedAt)
	if err != nil {
		if pgutil.IsNoRows(err) {
			return AuthMethod{}, NotFoundError{Op: op, Resource: "auth_method"}
		}
		return AuthMethod{}, dependency(op, err)
	}
	am.Type = AuthMethodType(typ)
	return am, nil
}

// ---- helpers ----

func (s *PostgresStore) t(name string) string { return pgutil.Ident(s.schema, name) }

func ownedResult(op string, existing Identity, userID string) (UpsertIdentityResult, error) {
	if existing.UserID != userID {
		return UpsertIdentityResult{}, ConflictError{Op: op, Field: "identity", OwnerUserID: existing.UserID}
	}
	return UpsertIdentityResult{Identity: existing}, nil
}

// identityArg returns the type-specific column and query argument for an identifier.
func identityArg(t IdentityType, identifier string) (col string, arg any, err error) {
	const op = "identity.identityArg"

	if strings.TrimSpace(identifier) == "" {
		return "", nil, pgInvalid(op, "missing identifier")
	}
	switch t {
	case TypeHive:
		return "handle", identifier, nil
	case TypeEVM:
		return "address", strings.ToLower(identifier), nil
	case TypeFarcaster:
		n, err := strconv.ParseInt(identifier, 10, 64)
		if err != nil {
			return "", nil, pgInvalid(op, "fid must be numeric")
		}
		return "fid", n, nil
	default:
		return "", nil, pgInvalid(op, "unsupported identity type")
	}
}

func validateCreateAccount(op string, in CreateAccountInput) error {
	if !ValidHandle(in.Handle) {
		return pgInvalid(op, "invalid handle")
	}
	if (in.Identity == nil) == (in.AuthMethod == nil) {
		return pgInvalid(op, "exactly one of identity or auth method is required")
	}
	if in.Identity != nil && !in.Identity.Type.Valid() {
		return pgInvalid(op, "unsupported identity type")
	}
	if in.AuthMethod != nil && in.AuthMethod.Type != AuthMethodEmail {
		return pgInvalid(op, "unsupported auth method type")
	}
	return nil
}

func scanUser(row pgx.Row) (User, error) {
	var (
		u      User
		status string
	)
	err := row.Scan(
		&u.ID,
		&u.Handle,
		&u.DisplayName,
		&u.AvatarURL,
		&status,
		&u.OnboardingStep,
		&u.MergedIntoUserID,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return User{}, err
	}
	u.Status = UserStatus(status)
	return u, nil
}

func scanIdentity(row pgx.Row) (Identity, error) {
	var (
		ident Identity
		typ   string
	)
	err := row.Scan(
		&ident.ID,
		&ident.UserID,
		&typ,
		&ident.Identifier,
		&ident.IsPrimary,
		&ident.VerifiedAt,
		&ident.Metadata,
		&ident.CreatedAt,
	)
	if err != nil {
		return Identity{}, err
	}
	ident.Type = IdentityType(typ)
	return ident, nil
}

func metadataOrEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// pgTrimPtr trims a string pointer, returning nil if result is empty.
func pgTrimPtr(p *string) *string {
	if p == nil {
		return nil
	}
	s := strings.TrimSpace(*p)
	if s == "" {
		return nil
	}
	return &s
}

// pgInvalid standardizes invalid input errors.
func pgInvalid(op, msg string) error {
	return OpError{Op: op, Kind: ErrInvalidInput, Msg: msg}
}

func dependency(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrDependency, err)
}
