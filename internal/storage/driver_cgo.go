//go:build cgo
// +build cgo

package storage

import (
	"database/sql"
	"fmt"
	"net/url"

	"github.com/mattn/go-sqlite3"
)

const driverName = "sqlite3_tanya"

func init() {
	sql.Register(driverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc(cosineDistanceFunc, cosineDistanceBlob, true)
		},
	})
}

// dataSourceName enables foreign keys and WAL on every connection, and makes
// transactions take the write lock up front.
func dataSourceName(path string) string {
	q := url.Values{}
	q.Set("_foreign_keys", "on")
	q.Set("_journal_mode", "WAL")
	q.Set("_busy_timeout", fmt.Sprint(busyTimeoutMillis))
	q.Set("_txlock", "immediate")
	return "file:" + path + "?" + q.Encode()
}
