package database

import (
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/busline/ticketing-backend/internal/models"
)

var userTestColumns = []string{
	"id", "email", "password_hash", "full_name", "phone", "role",
	"is_active", "last_login_at", "created_at", "updated_at",
}

func newTestDB(t *testing.T) (DB, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return &PostgresDB{DB: sqlx.NewDb(db, "sqlmock")}, mock
}

func TestCreateUser(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		db, mock := newTestDB(t)
		repo := NewUserRepository(db)

		mock.ExpectExec(`INSERT INTO users`).
			WithArgs(sqlmock.AnyArg(), "jane@example.com", "hashed-password", "Jane Doe",
				sqlmock.AnyArg(), models.UserRoleCustomer, true, sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		user, err := repo.CreateUser("jane@example.com", "hashed-password", "Jane Doe", nil, models.UserRoleCustomer)
		require.NoError(t, err)
		assert.NotEmpty(t, user.ID)
		assert.Equal(t, "jane@example.com", user.Email)
		assert.Equal(t, models.UserRoleCustomer, user.Role)
		assert.True(t, user.IsActive)
		assert.False(t, user.Phone.Valid)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("With Phone", func(t *testing.T) {
		db, mock := newTestDB(t)
		repo := NewUserRepository(db)

		phone := "+14155551234"
		mock.ExpectExec(`INSERT INTO users`).
			WithArgs(sqlmock.AnyArg(), "jane@example.com", "hashed-password", "Jane Doe",
				sqlmock.AnyArg(), models.UserRoleCustomer, true, sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		user, err := repo.CreateUser("jane@example.com", "hashed-password", "Jane Doe", &phone, models.UserRoleCustomer)
		require.NoError(t, err)
		assert.True(t, user.Phone.Valid)
		assert.Equal(t, phone, user.Phone.String)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Duplicate Email", func(t *testing.T) {
		db, mock := newTestDB(t)
		repo := NewUserRepository(db)

		mock.ExpectExec(`INSERT INTO users`).
			WillReturnError(&pq.Error{Code: "23505", Constraint: "users_email_key"})

		user, err := repo.CreateUser("jane@example.com", "hashed-password", "Jane Doe", nil, models.UserRoleCustomer)
		assert.ErrorIs(t, err, models.ErrEmailExists)
		assert.Nil(t, user)

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGetUserByEmail(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		db, mock := newTestDB(t)
		repo := NewUserRepository(db)

		userID := uuid.New().String()
		now := time.Now()

		mock.ExpectQuery(`SELECT (.+) FROM users WHERE email`).
			WithArgs("jane@example.com").
			WillReturnRows(sqlmock.NewRows(userTestColumns).AddRow(
				userID, "jane@example.com", "hashed-password", "Jane Doe",
				nil, "customer", true, nil, now, now,
			))

		user, err := repo.GetUserByEmail("jane@example.com")
		require.NoError(t, err)
		require.NotNil(t, user)
		assert.Equal(t, userID, user.ID)
		assert.Equal(t, "Jane Doe", user.FullName)
		assert.Equal(t, models.UserRoleCustomer, user.Role)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("User Not Found", func(t *testing.T) {
		db, mock := newTestDB(t)
		repo := NewUserRepository(db)

		mock.ExpectQuery(`SELECT (.+) FROM users WHERE email`).
			WithArgs("missing@example.com").
			WillReturnError(sql.ErrNoRows)

		user, err := repo.GetUserByEmail("missing@example.com")
		require.NoError(t, err)
		assert.Nil(t, user)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Database Error", func(t *testing.T) {
		db, mock := newTestDB(t)
		repo := NewUserRepository(db)

		mock.ExpectQuery(`SELECT (.+) FROM users WHERE email`).
			WithArgs("jane@example.com").
			WillReturnError(fmt.Errorf("database error"))

		user, err := repo.GetUserByEmail("jane@example.com")
		assert.Error(t, err)
		assert.Nil(t, user)
		assert.Contains(t, err.Error(), "failed to get user by email")

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGetUserByID(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		db, mock := newTestDB(t)
		repo := NewUserRepository(db)

		userID := uuid.New().String()
		now := time.Now()

		mock.ExpectQuery(`SELECT (.+) FROM users WHERE id`).
			WithArgs(userID).
			WillReturnRows(sqlmock.NewRows(userTestColumns).AddRow(
				userID, "admin@example.com", "hashed-password", "Site Admin",
				"+14155551234", "admin", true, now, now, now,
			))

		user, err := repo.GetUserByID(userID)
		require.NoError(t, err)
		require.NotNil(t, user)
		assert.Equal(t, models.UserRoleAdmin, user.Role)
		assert.True(t, user.IsAdmin())
		assert.True(t, user.LastLoginAt.Valid)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("User Not Found", func(t *testing.T) {
		db, mock := newTestDB(t)
		repo := NewUserRepository(db)

		userID := uuid.New().String()

		mock.ExpectQuery(`SELECT (.+) FROM users WHERE id`).
			WithArgs(userID).
			WillReturnError(sql.ErrNoRows)

		user, err := repo.GetUserByID(userID)
		require.NoError(t, err)
		assert.Nil(t, user)

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUpdateProfile(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		db, mock := newTestDB(t)
		repo := NewUserRepository(db)

		userID := uuid.New().String()
		phone := "+14155551234"

		mock.ExpectExec(`UPDATE users`).
			WithArgs("Jane Q. Doe", phone, sqlmock.AnyArg(), userID).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.UpdateProfile(userID, "Jane Q. Doe", &phone)
		require.NoError(t, err)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("User Not Found", func(t *testing.T) {
		db, mock := newTestDB(t)
		repo := NewUserRepository(db)

		userID := uuid.New().String()

		mock.ExpectExec(`UPDATE users`).
			WithArgs("Jane Q. Doe", nil, sqlmock.AnyArg(), userID).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.UpdateProfile(userID, "Jane Q. Doe", nil)
		assert.ErrorIs(t, err, models.ErrUserNotFound)

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSetActive(t *testing.T) {
	t.Run("Deactivate", func(t *testing.T) {
		db, mock := newTestDB(t)
		repo := NewUserRepository(db)

		userID := uuid.New().String()

		mock.ExpectExec(`UPDATE users`).
			WithArgs(false, sqlmock.AnyArg(), userID).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.SetActive(userID, false)
		require.NoError(t, err)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("User Not Found", func(t *testing.T) {
		db, mock := newTestDB(t)
		repo := NewUserRepository(db)

		mock.ExpectExec(`UPDATE users`).
			WithArgs(true, sqlmock.AnyArg(), "missing").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.SetActive("missing", true)
		assert.ErrorIs(t, err, models.ErrUserNotFound)

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestListUsers(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		db, mock := newTestDB(t)
		repo := NewUserRepository(db)

		now := time.Now()
		mock.ExpectQuery(`SELECT (.+) FROM users ORDER BY created_at DESC`).
			WithArgs(10, 0).
			WillReturnRows(sqlmock.NewRows(userTestColumns).
				AddRow(uuid.New().String(), "a@example.com", "h", "User A", nil, "customer", true, nil, now, now).
				AddRow(uuid.New().String(), "b@example.com", "h", "User B", nil, "admin", true, nil, now, now))

		users, err := repo.ListUsers(10, 0)
		require.NoError(t, err)
		assert.Len(t, users, 2)
		assert.Equal(t, "User A", users[0].FullName)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Empty Result", func(t *testing.T) {
		db, mock := newTestDB(t)
		repo := NewUserRepository(db)

		mock.ExpectQuery(`SELECT (.+) FROM users ORDER BY created_at DESC`).
			WithArgs(10, 0).
			WillReturnRows(sqlmock.NewRows(userTestColumns))

		users, err := repo.ListUsers(10, 0)
		require.NoError(t, err)
		assert.Len(t, users, 0)

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCountUsers(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		db, mock := newTestDB(t)
		repo := NewUserRepository(db)

		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM users`).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

		count, err := repo.CountUsers()
		require.NoError(t, err)
		assert.Equal(t, 42, count)

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
