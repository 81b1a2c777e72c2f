// Package port reports whether the host ports the platform's containers
// publish are free.
//
// The check command uses it before an install: a port that is already
// bound by something other than a Kamiwaza container makes
// containers-up.sh fail. After an install the same ports are expected to
// be in use.
package port
