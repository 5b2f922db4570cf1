//go:build !cgo
// +build !cgo

package storage

import (
	"database/sql/driver"
	"fmt"
	"net/url"

	"modernc.org/sqlite"
)

const driverName = "sqlite"

func init() {
	if err := sqlite.RegisterDeterministicScalarFunction(cosineDistanceFunc, 2, cosineDistanceImpl); err != nil {
		panic(err)
	}
}

func cosineDistanceImpl(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	a, ok := args[0].([]byte)
	if !ok {
		return nil, fmt.Errorf("%s: first argument must be a blob", cosineDistanceFunc)
	}
	b, ok := args[1].([]byte)
	if !ok {
		return nil, fmt.Errorf("%s: second argument must be a blob", cosineDistanceFunc)
	}
	return cosineDistanceBlob(a, b)
}

// dataSourceName enables foreign keys and WAL on every connection, and makes
// transactions take the write lock up front.
func dataSourceName(path string) string {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeoutMillis))
	q.Set("_txlock", "immediate")
	return "file:" + path + "?" + q.Encode()
}
