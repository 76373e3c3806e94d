package database

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/sma-billing-api/pkg/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{Host: "db", Port: 5433, User: "billing", Password: "s3cret", Name: "ledger", SSLMode: "require"})
	assert.Equal(t, "host=db port=5433 user=billing password=s3cret dbname=ledger sslmode=require", dsn)
}
