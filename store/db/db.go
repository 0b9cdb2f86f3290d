// Package db provides the database driver factory.
package db

import (
	"github.com/pkg/errors"

	"github.com/hrygo/slawatch/internal/profile"
	"github.com/hrygo/slawatch/store"
	"github.com/hrygo/slawatch/store/db/postgres"
)

// NewDBDriver creates a new database driver based on the profile.
func NewDBDriver(profile *profile.Profile) (store.Driver, error) {
	driver, err := postgres.NewDB(profile)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create postgres driver")
	}
	return driver, nil
}
