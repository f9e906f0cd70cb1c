package database

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/tutoring-booking-api/pkg/config"
)

func TestConnectionStrings(t *testing.T) {
	cfg := config.DatabaseConfig{Host: "db", Port: 5432, User: "app", Password: "p@ss", Name: "tutoring", SSLMode: "disable"}

	assert.Equal(t, "host=db port=5432 user=app password=p@ss dbname=tutoring sslmode=disable", DSN(cfg))
	assert.Equal(t, "postgres://app:p%40ss@db:5432/tutoring?sslmode=disable", MigrationURL(cfg))
}
