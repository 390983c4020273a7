package utils

import (
	"github.com/denisbrodbeck/machineid"
)

const hwidAppID = "lumen"

// HWID is an app-scoped hash of the machine id, or "unknown" if the platform does not expose one.
var HWID = func() string {
	id, err := machineid.ProtectedID(hwidAppID)
	if err != nil {
		return "unknown"
	}
	return id
}()
