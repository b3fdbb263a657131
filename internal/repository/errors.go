// Package repository holds the MySQL data access layer.  Sentinel errors
// defined here let the service layer tell "no such row" apart from a
// unique-key collision without inspecting driver errors itself.
package repository

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateCode is returned when a short code is already taken.
var ErrDuplicateCode = errors.New("short code already exists")

// ErrDuplicateToken is returned when a verification token hash has
// already been consumed by an earlier reservation.
var ErrDuplicateToken = errors.New("verification token already used")

// mysqlDuplicateEntry is the server error number for ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

// duplicateKey reports whether err is a MySQL unique-key violation and,
// if so, the name of the violated key as printed by the server.
func duplicateKey(err error) (string, bool) {
	// Only driver errors carry a server error number.
	var me *mysql.MySQLError
	if !errors.As(err, &me) || me.Number != mysqlDuplicateEntry {
		return "", false
	}
	// Message: Duplicate entry '...' for key 'table.key_name'
	msg := me.Message
	i := strings.LastIndex(msg, "for key '")
	// Still a duplicate even when the message format is unexpected.
	if i < 0 {
		return "", true
	}
	key := strings.TrimSuffix(msg[i+len("for key '"):], "'")
	// Newer servers prefix the key with the table name.
	if dot := strings.LastIndex(key, "."); dot >= 0 {
		key = key[dot+1:]
	}
	return key, true
}
