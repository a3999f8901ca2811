package setup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDBConfig_DSN(t *testing.T) {
	dsn, err := DBConfig{User: "wb", Password: "secret"}.DSN()
	require.NoError(t, err)
	assert.Equal(t, "wb:secret@tcp(127.0.0.1:3306)/whiteboard_db?charset=utf8mb4&parseTime=True&loc=Local", dsn)

	dsn, err = DBConfig{User: "wb", Password: "secret", Host: "db", Port: "3307", Name: "boards"}.DSN()
	require.NoError(t, err)
	assert.Equal(t, "wb:secret@tcp(db:3307)/boards?charset=utf8mb4&parseTime=True&loc=Local", dsn)

	_, err = DBConfig{Password: "secret"}.DSN()
	assert.Error(t, err)
	_, err = DBConfig{User: "wb"}.DSN()
	assert.Error(t, err)
}

func TestMigrateDB_NilConnection(t *testing.T) {
	assert.Error(t, MigrateDB(nil))
}
