package config

import (
	"errors"

	"github.com/zalando/go-keyring"
)

const keyringService = "dataview"

// StorePassword saves the password of a connection profile in the system
// keyring.
func StorePassword(connection, password string) error {
	return keyring.Set(keyringService, connection, password)
}

// LookupPassword returns the stored password of a connection profile, or
// "" when none is stored.
func LookupPassword(connection string) (string, error) {
	pw, err := keyring.Get(keyringService, connection)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	return pw, err
}

// DeletePassword removes a stored password. A missing entry is not an error.
func DeletePassword(connection string) error {
	err := keyring.Delete(keyringService, connection)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

// ResolvePassword fills in c.Password from the keyring when it is empty.
func ResolvePassword(c *Connection) error {
	if c.Password != "" {
		return nil
	}
	pw, err := LookupPassword(c.Name)
	if err != nil {
		return err
	}
	c.Password = pw
	return nil
}
